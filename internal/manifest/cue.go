package manifest

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// ParseCUE evaluates a CUE manifest against the manifest schema and decodes
// it.
func ParseCUE(file string, data []byte) (*Manifest, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Manifest"))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("manifest schema: %v", err)}
	}

	v := ctx.CompileBytes(data, cue.Filename(file))
	if err := v.Err(); err != nil {
		return nil, cueLoadError(ErrCodeParseFailed, file, err)
	}

	raw := v
	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(ErrCodeBuildFailed, file, err)
	}

	var m Manifest
	if err := v.Decode(&m); err != nil {
		return nil, cueLoadError(ErrCodeBuildFailed, file, err)
	}

	annotateCUE(file, raw, "types", func(i int, pos Pos) {
		if i < len(m.Types) {
			m.Types[i].Pos = pos
		}
	})
	annotateCUE(file, raw, "initializers", func(i int, pos Pos) {
		if i < len(m.Initializers) {
			m.Initializers[i].Pos = pos
		}
	})

	m.normalize()
	return &m, nil
}

func annotateCUE(file string, v cue.Value, field string, set func(i int, pos Pos)) {
	list := v.LookupPath(cue.ParsePath(field))
	if !list.Exists() {
		return
	}
	iter, err := list.List()
	if err != nil {
		return
	}
	for i := 0; iter.Next(); i++ {
		set(i, cuePos(file, iter.Value().Pos()))
	}
}

func cueLoadError(code, file string, err error) *LoadError {
	le := &LoadError{Code: code, Message: err.Error(), Pos: Pos{File: file}}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Message = errs[0].Error()
		if pos := errs[0].Position(); pos.IsValid() {
			le.Pos = cuePos(file, pos)
		}
	}
	return le
}

func cuePos(file string, pos token.Pos) Pos {
	if !pos.IsValid() {
		return Pos{File: file}
	}
	if name := pos.Filename(); name != "" {
		file = name
	}
	return Pos{File: file, Line: pos.Line(), Column: pos.Column()}
}
