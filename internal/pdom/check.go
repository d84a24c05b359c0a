package pdom

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"pdom/internal/db"
)

// CheckError lists every list invariant found broken.
type CheckError struct {
	Problems []error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("index check: %d problem(s): %v", len(e.Problems), errors.Join(e.Problems...))
}

func (e *CheckError) Unwrap() []error { return e.Problems }

// membership records in which list a name was met.
type membership map[db.Offset]db.Offset

// Check walks every file list and every binding list under one read lock and
// verifies that the lists are symmetric, that each name points back at the
// owner of the list holding it, and that no name sits in two lists of the
// same sort. Storage faults abort the check; broken invariants are collected
// into a *CheckError.
func (ix *Index) Check(ctx context.Context) error {
	return ix.Read(func(tx *ReadTx) error {
		var fileSeen, bindingSeen membership
		var fileProblems, bindingProblems []error

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			fileSeen, fileProblems, err = tx.checkLists(ctx, ix.files, fileFirstName, nameFileRec, nameFilePrev, nameFileNext)
			return err
		})
		g.Go(func() error {
			var err error
			bindingSeen, bindingProblems, err = tx.checkLists(ctx, ix.bindings, bindingFirstDecl, nameBindingRec, nameBindingPrev, nameBindingNext)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		problems := append(fileProblems, bindingProblems...)
		d := tx.s.db()
		for name := range fileSeen {
			binding, err := d.GetRecPtr(name + nameBindingRec)
			if err != nil {
				return err
			}
			if got, ok := bindingSeen[name]; !binding.IsNull() && (!ok || got != binding) {
				problems = append(problems, fmt.Errorf("name %v bound to %v is missing from its declaration list", name, binding))
			}
		}
		for name, binding := range bindingSeen {
			if _, ok := fileSeen[name]; !ok {
				problems = append(problems, fmt.Errorf("name %v in declarations of %v belongs to no file list", name, binding))
			}
		}
		if len(problems) > 0 {
			return &CheckError{Problems: problems}
		}
		return nil
	})
}

// checkLists walks the lists headed by every owner in m. It returns the
// owner each name was found under.
func (tx *ReadTx) checkLists(ctx context.Context, m *hashMap, headField, ownerField, prevField, nextField db.Offset) (membership, []error, error) {
	d := tx.s.db()
	seen := make(membership)
	var problems []error
	err := m.each(func(owner db.Offset) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		prev := db.NullOffset
		cur, err := d.GetRecPtr(owner + headField)
		for err == nil && !cur.IsNull() {
			if cerr := d.CheckRecord(cur); cerr != nil {
				problems = append(problems, fmt.Errorf("list of %v: %w", owner, cerr))
				return nil
			}
			if other, dup := seen[cur]; dup {
				problems = append(problems, fmt.Errorf("name %v is in the lists of %v and %v", cur, other, owner))
				return nil
			}
			seen[cur] = owner

			back, berr := d.GetRecPtr(cur + ownerField)
			if berr != nil {
				return berr
			}
			if back != owner {
				problems = append(problems, fmt.Errorf("name %v in list of %v points to %v", cur, owner, back))
			}
			p, perr := d.GetRecPtr(cur + prevField)
			if perr != nil {
				return perr
			}
			if p != prev {
				problems = append(problems, fmt.Errorf("name %v in list of %v: prev is %v, want %v", cur, owner, p, prev))
			}
			prev = cur
			cur, err = d.GetRecPtr(cur + nextField)
		}
		return err
	})
	return seen, problems, err
}
