package pdom

// NameInfo is a copy of a name record that outlives its transaction.
type NameInfo struct {
	Ref        NameRef
	File       string
	Offset     int
	Length     int
	Binding    BindingRef // null when unresolved
	Identifier string
}

// FileInfo is a copy of a file record.
type FileInfo struct {
	Ref   FileRef
	Path  string
	Names int
}

// BindingInfo is a copy of a binding record.
type BindingInfo struct {
	Ref          BindingRef
	Type         NodeType
	Kind         string
	Name         string
	Owner        BindingRef
	Flags        []Capability
	Declarations int
}

// Info copies the record behind n.
func (n Name) Info() (NameInfo, error) {
	var info NameInfo
	var err error
	if info.Ref, err = n.Ref(); err != nil {
		return NameInfo{}, err
	}
	if info.File, err = n.FileName(); err != nil {
		return NameInfo{}, err
	}
	if info.Offset, err = n.NodeOffset(); err != nil {
		return NameInfo{}, err
	}
	if info.Length, err = n.NodeLength(); err != nil {
		return NameInfo{}, err
	}
	b, ok, err := n.ResolveBinding()
	if err != nil {
		return NameInfo{}, err
	}
	if ok {
		if info.Binding, err = b.Ref(); err != nil {
			return NameInfo{}, err
		}
		if info.Identifier, err = b.Name(); err != nil {
			return NameInfo{}, err
		}
	}
	return info, nil
}

// Info copies the record behind f, counting its names.
func (f File) Info() (FileInfo, error) {
	var info FileInfo
	var err error
	if info.Ref, err = f.Ref(); err != nil {
		return FileInfo{}, err
	}
	if info.Path, err = f.Path(); err != nil {
		return FileInfo{}, err
	}
	err = f.EachName(func(Name) error {
		info.Names++
		return nil
	})
	return info, err
}

// Info copies the record behind b, counting its declarations.
func (b Binding) Info() (BindingInfo, error) {
	info := BindingInfo{Type: b.NodeType(), Kind: b.layout.Name()}
	var err error
	if info.Ref, err = b.Ref(); err != nil {
		return BindingInfo{}, err
	}
	if info.Name, err = b.Name(); err != nil {
		return BindingInfo{}, err
	}
	owner, ok, err := b.Owner()
	if err != nil {
		return BindingInfo{}, err
	}
	if ok {
		if info.Owner, err = owner.Ref(); err != nil {
			return BindingInfo{}, err
		}
	}
	if info.Flags, err = b.Flags(); err != nil {
		return BindingInfo{}, err
	}
	err = b.EachDeclaration(func(Name) error {
		info.Declarations++
		return nil
	})
	return info, err
}

func namesInfo(names []Name) ([]NameInfo, error) {
	out := make([]NameInfo, 0, len(names))
	for _, n := range names {
		info, err := n.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}
