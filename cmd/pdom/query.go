package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pdom/internal/pdom"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List indexed files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndex(func(s *session, ix *pdom.Index) error {
			files, err := ix.Files()
			if err != nil {
				return err
			}
			t := newTable("PATH", "NAMES").color(0, pathColor)
			for _, f := range files {
				t.add(f.Path, strconv.Itoa(f.Names))
			}
			return t.write(cmd.OutOrStdout())
		})
	},
}

var namesCmd = &cobra.Command{
	Use:   "names <path>",
	Short: "List the names parsed from a file, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndex(func(s *session, ix *pdom.Index) error {
			names, ok, err := ix.NamesInFile(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("file %q is not indexed", args[0])
			}
			bindings, err := bindingLabels(ix)
			if err != nil {
				return err
			}
			t := newTable("OFFSET", "LENGTH", "BINDING").color(2, kindColor)
			for _, n := range names {
				label := dimColor.Sprint("<unresolved>")
				if !n.Binding.IsNull() {
					label = bindings[n.Binding]
				}
				t.add(strconv.Itoa(n.Offset), strconv.Itoa(n.Length), label)
			}
			return t.write(cmd.OutOrStdout())
		})
	},
}

var bindingsCmd = &cobra.Command{
	Use:   "bindings",
	Short: "List bindings with their kind and declaration count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndex(func(s *session, ix *pdom.Index) error {
			all, err := ix.Bindings()
			if err != nil {
				return err
			}
			labels := labelsOf(all)
			t := newTable("KIND", "NAME", "FLAGS", "DECLS").color(0, kindColor)
			for _, b := range all {
				var flags []string
				for _, c := range b.Flags {
					flags = append(flags, c.String())
				}
				t.add(b.Kind, labels[b.Ref], strings.Join(flags, ","), strconv.Itoa(b.Declarations))
			}
			return t.write(cmd.OutOrStdout())
		})
	},
}

var declsCmd = &cobra.Command{
	Use:   "decls <kind> <qualified-name>",
	Short: "List the declarations of a binding",
	Long: `Decls resolves a binding by kind and qualified name, e.g.
"pdom decls cpp.method Widget::draw", and lists its names newest first.
Qualifiers are looked up as classes, namespaces, structs and unions, in that
order.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndex(func(s *session, ix *pdom.Index) error {
			b, err := lookupQualified(ix, args[0], args[1])
			if err != nil {
				return err
			}
			names, err := ix.Declarations(b.Ref)
			if err != nil {
				return err
			}
			t := newTable("FILE", "OFFSET", "LENGTH").color(0, pathColor)
			for _, n := range names {
				t.add(n.File, strconv.Itoa(n.Offset), strconv.Itoa(n.Length))
			}
			return t.write(cmd.OutOrStdout())
		})
	},
}

// ownerKinds are tried in order when resolving a qualifier.
var ownerKinds = []string{"cpp.class", "cpp.namespace", "c.struct", "c.union"}

func lookupQualified(ix *pdom.Index, kind, qualified string) (pdom.BindingInfo, error) {
	reg := ix.Registry()
	layout, ok := reg.LookupName(kind)
	if !ok {
		return pdom.BindingInfo{}, fmt.Errorf("%w: kind %q", pdom.ErrUnknownNodeType, kind)
	}
	parts := strings.Split(qualified, "::")
	var owner pdom.BindingRef
	for _, part := range parts[:len(parts)-1] {
		found := false
		for _, k := range ownerKinds {
			l, known := reg.LookupName(k)
			if !known {
				continue
			}
			info, hit, err := ix.FindBinding(l.Type(), owner, part)
			if err != nil {
				return pdom.BindingInfo{}, err
			}
			if hit {
				owner, found = info.Ref, true
				break
			}
		}
		if !found {
			return pdom.BindingInfo{}, fmt.Errorf("no scope %q in %q", part, qualified)
		}
	}
	name := parts[len(parts)-1]
	info, ok, err := ix.FindBinding(layout.Type(), owner, name)
	if err != nil {
		return pdom.BindingInfo{}, err
	}
	if !ok {
		return pdom.BindingInfo{}, fmt.Errorf("no %s %q", kind, qualified)
	}
	return info, nil
}

// bindingLabels maps every binding to "kind qualified::name".
func bindingLabels(ix *pdom.Index) (map[pdom.BindingRef]string, error) {
	all, err := ix.Bindings()
	if err != nil {
		return nil, err
	}
	names := labelsOf(all)
	out := make(map[pdom.BindingRef]string, len(all))
	for _, b := range all {
		out[b.Ref] = b.Kind + " " + names[b.Ref]
	}
	return out, nil
}

// labelsOf qualifies each binding name with its owner chain.
func labelsOf(all []pdom.BindingInfo) map[pdom.BindingRef]string {
	byRef := make(map[pdom.BindingRef]pdom.BindingInfo, len(all))
	for _, b := range all {
		byRef[b.Ref] = b
	}
	out := make(map[pdom.BindingRef]string, len(all))
	for _, b := range all {
		parts := []string{b.Name}
		seen := map[pdom.BindingRef]bool{b.Ref: true}
		for o := b.Owner; !o.IsNull() && !seen[o]; {
			seen[o] = true
			owner, ok := byRef[o]
			if !ok {
				break
			}
			parts = append([]string{owner.Name}, parts...)
			o = owner.Owner
		}
		out[b.Ref] = strings.Join(parts, "::")
	}
	return out
}
