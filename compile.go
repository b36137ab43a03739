package webbs

// Compile runs the whole pipeline end to end (spec.md §1's primary
// `compile(source_text) -> bytes` entrypoint): parse, resolve, validate,
// emit. The first stage to fail aborts the pipeline and its
// *CompileError is returned as-is (spec.md §7: "the compiler never
// recovers locally").
//
// Grounded on the teacher's GrammarFromBytes (api.go), which threads a
// single input through a fixed sequence of named transformation steps
// and returns on the first error — generalized here from grammar-AST
// transformations to compiler pipeline stages.
func Compile(source string, cfg *Config) ([]byte, error) {
	if cfg == nil {
		cfg = NewConfig()
	}

	root, err := Parse(source)
	if err != nil {
		return nil, err
	}

	if cfg.GetBool("resolver.run") {
		if err := Resolve(root, root.Scope); err != nil {
			return nil, err
		}
	}

	if cfg.GetBool("validator.run") {
		if err := Validate(root, root.Scope); err != nil {
			return nil, err
		}
	}

	if !cfg.GetBool("emitter.run") {
		return nil, nil
	}

	return EmitModule(root, root.Scope)
}
