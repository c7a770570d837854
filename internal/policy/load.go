package policy

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Format is a policy file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", &ValidationError{
		Code:    ErrCodeUnsupportedFormat,
		Message: fmt.Sprintf("unsupported policy file extension %q (want .yaml, .yml or .toml)", filepath.Ext(path)),
	}
}

// Load reads, validates and decodes the policy file at path.
func Load(path string) (*Policy, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	p, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse validates and decodes policy data in the given format.
func Parse(data []byte, format Format) (*Policy, error) {
	raw, err := decodeRaw(data, format)
	if err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile policy schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Policy")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, schemaError(err)
	}

	var p Policy
	if err := v.Decode(&p); err != nil {
		return nil, schemaError(err)
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeRaw(data []byte, format Format) (map[string]any, error) {
	raw := map[string]any{}
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &ValidationError{Code: ErrCodeParse, Message: "policy file is empty"}
			}
			return nil, &ValidationError{Code: ErrCodeParse, Message: fmt.Sprintf("parse YAML: %v", err)}
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, &ValidationError{Code: ErrCodeParse, Message: fmt.Sprintf("parse TOML: %v", err)}
		}
	default:
		return nil, &ValidationError{Code: ErrCodeUnsupportedFormat, Message: fmt.Sprintf("unsupported format %q", format)}
	}
	return raw, nil
}

// schemaError converts the first CUE error into a ValidationError that names
// the offending path.
func schemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Code: ErrCodeSchema, Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	msg := fmt.Sprintf(format, args...)
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(errs)-1)
	}
	return &ValidationError{
		Code:    ErrCodeSchema,
		Field:   strings.Join(first.Path(), "."),
		Message: msg,
	}
}

// normalize canonicalizes triggers and checks what the schema cannot express.
func (p *Policy) normalize() error {
	seen := make(map[string]string, len(p.Profiles))
	for i := range p.Profiles {
		prof := &p.Profiles[i]
		field := fmt.Sprintf("profiles.%d", i)

		key := foldName(prof.Name)
		if prev, ok := seen[key]; ok {
			return &ValidationError{
				Code:    ErrCodeDuplicateProfile,
				Field:   field + ".name",
				Message: fmt.Sprintf("profile %q duplicates %q", prof.Name, prev),
			}
		}
		seen[key] = prof.Name

		for j, raw := range prof.Triggers {
			t, err := ParseTrigger(string(raw))
			if err != nil {
				var ve *ValidationError
				if errors.As(err, &ve) {
					ve.Field = fmt.Sprintf("%s.triggers.%d", field, j)
				}
				return err
			}
			prof.Triggers[j] = t
		}

		if _, err := prof.TimeoutDuration(); err != nil {
			return &ValidationError{
				Code:    ErrCodeBadTimeout,
				Field:   field + ".timeout",
				Message: err.Error(),
			}
		}
	}
	return nil
}
