// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"net/url"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/drillstream/drillstream/wire"
)

// query is a parsed object uri: the base address plus an optional
// compiled selection predicate from its "?where=" parameter.
type query struct {
	base      string
	predicate *vm.Program
}

// parseQuery splits uri into base and predicate. A present but
// uncompilable predicate fails with CodeInvalidArgument; the caller
// answers that one request and the session lives on.
func parseQuery(uri string) (query, error) {
	base, rawQuery, found := strings.Cut(uri, "?")
	if !found {
		return query{base: uri}, nil
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return query{}, wire.Errorf(wire.CodeInvalidArgument, "parse uri query %q: %v", rawQuery, err)
	}
	where := values.Get("where")
	if where == "" {
		return query{base: base}, nil
	}

	program, err := expr.Compile(where, expr.Env(predicateEnv(wire.DataObject{})), expr.AsBool())
	if err != nil {
		return query{}, wire.Errorf(wire.CodeInvalidArgument, "compile predicate %q: %v", where, err)
	}
	return query{base: base, predicate: program}, nil
}

// predicateEnv exposes an object's addressable fields to predicate
// expressions, e.g. `name == "w1" && contentType contains "witsml"`.
func predicateEnv(object wire.DataObject) map[string]any {
	return map[string]any{
		"uri":         object.URI,
		"name":        object.Name,
		"contentType": object.ContentType,
		"lastChanged": object.LastChanged,
	}
}

// matches runs the predicate against one object. Evaluation failures
// are InvalidArgument: the predicate, not the store, is at fault.
func (q query) matches(object wire.DataObject) (bool, error) {
	if q.predicate == nil {
		return true, nil
	}
	matched, err := expr.Run(q.predicate, predicateEnv(object))
	if err != nil {
		return false, wire.Errorf(wire.CodeInvalidArgument, "evaluate predicate: %v", err)
	}
	return matched.(bool), nil
}
