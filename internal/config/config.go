// Package config loads plugin option files and enforces the namespace
// isolation between core pipeline configuration and plugin options. All of
// its failures surface before any engine touches the filesystem.
package config

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/enspipe/enspipe/internal/ctxlog"
	"github.com/enspipe/enspipe/internal/fsutil"
	"github.com/enspipe/enspipe/internal/plugin"
)

// Error reports invalid configuration: a malformed option file, an unknown
// plugin, or a plugin option that collides with a core key.
type Error struct {
	Subject string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Subject, e.Reason)
}

func errorf(subject, format string, args ...any) *Error {
	return &Error{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}

// fileRoot decodes the top-level blocks of an option file.
type fileRoot struct {
	Plugins []*pluginBlock `hcl:"plugin,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

// pluginBlock carries one plugin's options, decoded lazily into the
// plugin's own option struct.
type pluginBlock struct {
	Name   string   `hcl:"name,label"`
	Remain hcl.Body `hcl:",remain"`
}

// LoadPluginOptions decodes plugin option blocks from an HCL file, or from
// every .hcl file under a directory, into the registered plugins' option
// structs. Blocks addressing unknown plugins, and files addressing plugins
// without options, are configuration errors.
func LoadPluginOptions(ctx context.Context, path string, reg *plugin.Registry) error {
	log := ctxlog.FromContext(ctx)
	files, err := optionFiles(path)
	if err != nil {
		return err
	}
	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return errorf(file, "parsing plugin options: %s", diags.Error())
		}
		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return errorf(file, "decoding plugin options: %s", diags.Error())
		}
		for _, block := range root.Plugins {
			p, err := reg.Lookup(block.Name)
			if err != nil {
				return errorf(file, "%v", err)
			}
			opts := p.Options()
			if opts == nil {
				return errorf(file, "plugin %q takes no options", block.Name)
			}
			if diags := gohcl.DecodeBody(block.Remain, nil, opts); diags.HasErrors() {
				return errorf(file, "plugin %q options: %s", block.Name, diags.Error())
			}
			log.Debug("decoded plugin options", "plugin", block.Name, "file", file)
		}
	}
	return nil
}

func optionFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errorf(path, "plugin option path: %v", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, errorf(path, "scanning plugin option directory: %v", err)
	}
	if len(files) == 0 {
		return nil, errorf(path, "no .hcl option files found")
	}
	return files, nil
}

// ValidatePluginOptions checks every registered plugin's option struct
// before dispatch: each exported field needs an hcl tag, the tag must not
// collide with a core configuration key, and the field's Go type must have
// an implied cty type so the HCL decoder can ever populate it.
//
// Core keys are flag names; comparison normalizes dashes to underscores.
func ValidatePluginOptions(ctx context.Context, reg *plugin.Registry, coreKeys []string) error {
	core := make(map[string]struct{}, len(coreKeys))
	for _, k := range coreKeys {
		core[normalizeKey(k)] = struct{}{}
	}

	var errs []string
	for _, name := range reg.Names() {
		p, err := reg.Lookup(name)
		if err != nil {
			return err
		}
		opts := p.Options()
		if opts == nil {
			continue
		}
		t := reflect.TypeOf(opts)
		if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
			errs = append(errs, fmt.Sprintf("plugin %q: options must be a pointer to a struct, got %T", name, opts))
			continue
		}
		st := t.Elem()
		for i := 0; i < st.NumField(); i++ {
			field := st.Field(i)
			if !field.IsExported() {
				continue
			}
			tag := strings.Split(field.Tag.Get("hcl"), ",")[0]
			if tag == "" || tag == "-" {
				errs = append(errs, fmt.Sprintf("plugin %q: field %s has no hcl tag", name, field.Name))
				continue
			}
			if _, taken := core[normalizeKey(tag)]; taken {
				errs = append(errs, fmt.Sprintf("plugin %q: option %q collides with a core configuration key", name, tag))
			}
			if _, err := gocty.ImpliedType(reflect.Zero(field.Type).Interface()); err != nil {
				errs = append(errs, fmt.Sprintf("plugin %q: option %q: no cty type for Go type %s: %v", name, tag, field.Type, err))
			}
		}
	}
	if len(errs) > 0 {
		return errorf("plugin options", "%s", strings.Join(errs, "; "))
	}
	ctxlog.FromContext(ctx).Debug("plugin option namespaces validated", "plugins", len(reg.Names()))
	return nil
}

func normalizeKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(k), "-", "_")
}
