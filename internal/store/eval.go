package store

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// evalPipeline interprets the narrow stage/expression vocabulary
// internal/pipeline.BuildGetFieldPipeline and BuildIsAboveMeanPipeline emit:
// $match, $lookup, $unwind, $project, $limit, $let, $switch, $cond, $and,
// $or, $not, $eq, $in, $gt, $lt, $ifNull, $getField, $filter, $first, and
// the $$NOW/$$ROOT/let-bound variables. It
// is deliberately not a general Mongo interpreter; anything outside this
// vocabulary returns an error rather than silently misevaluating (a test
// failure is far preferable to a test that passes on the wrong semantics).
func evalPipeline(docs []bson.M, pipeline bson.A, collections map[string]map[string]bson.M) ([]bson.M, error) {
	cur := docs
	for _, stageAny := range pipeline {
		stage, ok := stageAny.(bson.D)
		if !ok || len(stage) != 1 {
			return nil, ErrExecute.Wrap("each stage must be a single-key document")
		}
		name, spec := stage[0].Key, stage[0].Value
		var err error
		switch name {
		case "$match":
			cur, err = evalMatch(cur, spec)
		case "$lookup":
			cur, err = evalLookup(cur, spec, collections)
		case "$unwind":
			cur, err = evalUnwind(cur, spec)
		case "$project":
			cur, err = evalProject(cur, spec)
		case "$limit":
			cur, err = evalLimit(cur, spec)
		default:
			return nil, ErrExecute.Wrapf("unsupported stage %q", name)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func evalLimit(docs []bson.M, spec any) ([]bson.M, error) {
	n, ok := toFloat(spec)
	if !ok {
		return nil, ErrExecute.Wrap("$limit requires a number")
	}
	limit := int(n)
	if limit >= len(docs) {
		return docs, nil
	}
	if limit < 0 {
		limit = 0
	}
	return docs[:limit], nil
}

func evalMatch(docs []bson.M, spec any) ([]bson.M, error) {
	cond, ok := spec.(bson.D)
	if !ok {
		return nil, ErrExecute.Wrap("$match requires a document")
	}
	var out []bson.M
	for _, d := range docs {
		match := true
		for _, elem := range cond {
			want, err := resolveLeaf(elem.Value, d, nil)
			if err != nil {
				return nil, err
			}
			if !bsonEqual(d[elem.Key], want) {
				match = false
				break
			}
		}
		if match {
			out = append(out, d)
		}
	}
	return out, nil
}

func evalLookup(docs []bson.M, spec any, collections map[string]map[string]bson.M) ([]bson.M, error) {
	cfg, ok := spec.(bson.D)
	if !ok {
		return nil, ErrExecute.Wrap("$lookup requires a document")
	}
	m := cfg.Map()
	from, _ := m["from"].(string)
	localField, _ := m["localField"].(string)
	foreignField, _ := m["foreignField"].(string)
	as, _ := m["as"].(string)

	foreign := collections[from]
	out := make([]bson.M, 0, len(docs))
	for _, d := range docs {
		local := d[localField]
		var matches bson.A
		for _, fd := range foreign {
			if bsonEqual(fd[foreignField], local) {
				matches = append(matches, cloneDoc(fd))
			}
		}
		nd := cloneDoc(d)
		nd[as] = matches
		out = append(out, nd)
	}
	return out, nil
}

func evalUnwind(docs []bson.M, spec any) ([]bson.M, error) {
	cfg, ok := spec.(bson.D)
	if !ok {
		return nil, ErrExecute.Wrap("$unwind requires a document")
	}
	m := cfg.Map()
	pathExpr, _ := m["path"].(string)
	preserve, _ := m["preserveNullAndEmptyArrays"].(bool)
	field := trimDollar(pathExpr)

	var out []bson.M
	for _, d := range docs {
		arr, _ := d[field].(bson.A)
		if len(arr) == 0 {
			if preserve {
				nd := cloneDoc(d)
				nd[field] = nil
				out = append(out, nd)
			}
			continue
		}
		for _, elem := range arr {
			nd := cloneDoc(d)
			nd[field] = elem
			out = append(out, nd)
		}
	}
	return out, nil
}

func evalProject(docs []bson.M, spec any) ([]bson.M, error) {
	projection, ok := spec.(bson.D)
	if !ok {
		return nil, ErrExecute.Wrap("$project requires a document")
	}
	out := make([]bson.M, 0, len(docs))
	for _, d := range docs {
		nd := bson.M{}
		for _, elem := range projection {
			if elem.Key == "_id" {
				if b, ok := elem.Value.(int); ok && b == 0 {
					continue
				}
			}
			val, err := resolveLeaf(elem.Value, d, nil)
			if err != nil {
				return nil, err
			}
			nd[elem.Key] = val
		}
		out = append(out, nd)
	}
	return out, nil
}

// resolveLeaf evaluates one aggregation expression node against doc (the
// $ROOT-equivalent current document) and vars (the active $let bindings).
func resolveLeaf(node any, doc bson.M, vars map[string]any) (any, error) {
	switch v := node.(type) {
	case bson.D:
		if len(v) == 1 {
			if fn, ok := operatorFuncs[v[0].Key]; ok {
				return fn(v[0].Value, doc, vars)
			}
			if len(v[0].Key) > 0 && v[0].Key[0] == '$' {
				return nil, ErrExecute.Wrapf("unsupported operator %q", v[0].Key)
			}
		}
		// Not an operator: treat as a literal sub-document.
		nd := bson.M{}
		for _, elem := range v {
			val, err := resolveLeaf(elem.Value, doc, vars)
			if err != nil {
				return nil, err
			}
			nd[elem.Key] = val
		}
		return nd, nil

	case bson.A:
		out := make(bson.A, len(v))
		for i, e := range v {
			val, err := resolveLeaf(e, doc, vars)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil

	case string:
		return resolveVarOrField(v, doc, vars), nil

	default:
		return v, nil
	}
}

func resolveVarOrField(s string, doc bson.M, vars map[string]any) any {
	switch {
	case s == "$$NOW":
		return time.Now()
	case len(s) >= 2 && s[:2] == "$$":
		path := s[2:]
		head, rest := splitPath(path)
		if head == "ROOT" {
			if rest == "" {
				return doc
			}
			return getPath(doc, rest)
		}
		root, ok := vars[head]
		if !ok || rest == "" {
			return root
		}
		return getPath(root, rest)
	case len(s) >= 1 && s[0] == '$':
		return getPath(doc, s[1:])
	default:
		return s
	}
}

// splitPath splits "a.b.c" into head "a" and rest "b.c" (rest is "" if
// there is no dot).
func splitPath(s string) (head, rest string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

// getPath walks a dotted field path ("auth.users") through nested
// bson.M/bson.D values, the minimal subset of Mongo's dotted-path field
// reference this narrow interpreter needs.
func getPath(root any, path string) any {
	cur := root
	for path != "" {
		var head string
		head, path = splitPath(path)
		switch v := cur.(type) {
		case bson.M:
			cur = v[head]
		case bson.D:
			found := false
			for _, e := range v {
				if e.Key == head {
					cur = e.Value
					found = true
					break
				}
			}
			if !found {
				return nil
			}
		default:
			return nil
		}
	}
	return cur
}

func trimDollar(s string) string {
	if len(s) > 0 && s[0] == '$' {
		return s[1:]
	}
	return s
}

type operatorFunc func(arg any, doc bson.M, vars map[string]any) (any, error)

var operatorFuncs = map[string]operatorFunc{
	"$let": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		cfg, ok := arg.(bson.D)
		if !ok {
			return nil, ErrExecute.Wrap("$let requires a document")
		}
		m := cfg.Map()
		varsSpec, _ := m["vars"].(bson.D)
		inner := make(map[string]any, len(varsSpec))
		for _, elem := range varsSpec {
			val, err := resolveLeaf(elem.Value, doc, vars)
			if err != nil {
				return nil, err
			}
			inner[elem.Key] = val
		}
		return resolveLeaf(m["in"], doc, inner)
	},
	"$switch": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		cfg, ok := arg.(bson.D)
		if !ok {
			return nil, ErrExecute.Wrap("$switch requires a document")
		}
		m := cfg.Map()
		branches, _ := m["branches"].(bson.A)
		for _, b := range branches {
			branch, ok := b.(bson.D)
			if !ok {
				continue
			}
			bm := branch.Map()
			caseVal, err := resolveLeaf(bm["case"], doc, vars)
			if err != nil {
				return nil, err
			}
			if truthy(caseVal) {
				return resolveLeaf(bm["then"], doc, vars)
			}
		}
		if def, ok := m["default"]; ok {
			return resolveLeaf(def, doc, vars)
		}
		return nil, nil
	},
	"$cond": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		arr, ok := arg.(bson.A)
		if !ok || len(arr) != 3 {
			return nil, ErrExecute.Wrap("$cond requires a 3-element array")
		}
		c, err := resolveLeaf(arr[0], doc, vars)
		if err != nil {
			return nil, err
		}
		if truthy(c) {
			return resolveLeaf(arr[1], doc, vars)
		}
		return resolveLeaf(arr[2], doc, vars)
	},
	"$and": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		arr, _ := arg.(bson.A)
		for _, e := range arr {
			v, err := resolveLeaf(e, doc, vars)
			if err != nil {
				return nil, err
			}
			if !truthy(v) {
				return false, nil
			}
		}
		return true, nil
	},
	"$or": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		arr, _ := arg.(bson.A)
		for _, e := range arr {
			v, err := resolveLeaf(e, doc, vars)
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				return true, nil
			}
		}
		return false, nil
	},
	"$not": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		v, err := resolveLeaf(arg, doc, vars)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	},
	"$eq": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		arr, ok := arg.(bson.A)
		if !ok || len(arr) != 2 {
			return nil, ErrExecute.Wrap("$eq requires a 2-element array")
		}
		a, err := resolveLeaf(arr[0], doc, vars)
		if err != nil {
			return nil, err
		}
		b, err := resolveLeaf(arr[1], doc, vars)
		if err != nil {
			return nil, err
		}
		return bsonEqual(a, b), nil
	},
	"$in": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		arr, ok := arg.(bson.A)
		if !ok || len(arr) != 2 {
			return nil, ErrExecute.Wrap("$in requires a 2-element array")
		}
		needle, err := resolveLeaf(arr[0], doc, vars)
		if err != nil {
			return nil, err
		}
		haystack, err := resolveLeaf(arr[1], doc, vars)
		if err != nil {
			return nil, err
		}
		list, _ := haystack.(bson.A)
		for _, item := range list {
			if bsonEqual(item, needle) {
				return true, nil
			}
		}
		return false, nil
	},
	"$gt": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		arr, ok := arg.(bson.A)
		if !ok || len(arr) != 2 {
			return nil, ErrExecute.Wrap("$gt requires a 2-element array")
		}
		a, err := resolveLeaf(arr[0], doc, vars)
		if err != nil {
			return nil, err
		}
		b, err := resolveLeaf(arr[1], doc, vars)
		if err != nil {
			return nil, err
		}
		return compareNumericOrTime(a, b) > 0, nil
	},
	"$lt": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		arr, ok := arg.(bson.A)
		if !ok || len(arr) != 2 {
			return nil, ErrExecute.Wrap("$lt requires a 2-element array")
		}
		a, err := resolveLeaf(arr[0], doc, vars)
		if err != nil {
			return nil, err
		}
		b, err := resolveLeaf(arr[1], doc, vars)
		if err != nil {
			return nil, err
		}
		return compareNumericOrTime(a, b) < 0, nil
	},
	"$ifNull": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		arr, ok := arg.(bson.A)
		if !ok || len(arr) < 2 {
			return nil, ErrExecute.Wrap("$ifNull requires at least 2 elements")
		}
		for _, e := range arr {
			v, err := resolveLeaf(e, doc, vars)
			if err != nil {
				return nil, err
			}
			if v != nil {
				return v, nil
			}
		}
		return nil, nil
	},
	"$getField": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		cfg, ok := arg.(bson.D)
		if !ok {
			return nil, ErrExecute.Wrap("$getField requires a document")
		}
		m := cfg.Map()
		field, _ := m["field"].(string)
		input, err := resolveLeaf(m["input"], doc, vars)
		if err != nil {
			return nil, err
		}
		if input == nil {
			return nil, nil
		}
		return getPath(input, field), nil
	},
	"$filter": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		cfg, ok := arg.(bson.D)
		if !ok {
			return nil, ErrExecute.Wrap("$filter requires a document")
		}
		m := cfg.Map()
		input, err := resolveLeaf(m["input"], doc, vars)
		if err != nil {
			return nil, err
		}
		arr, _ := input.(bson.A)
		asName, _ := m["as"].(string)

		out := bson.A{}
		for _, item := range arr {
			scoped := make(map[string]any, len(vars)+1)
			for k, v := range vars {
				scoped[k] = v
			}
			scoped[asName] = item
			cond, err := resolveLeaf(m["cond"], doc, scoped)
			if err != nil {
				return nil, err
			}
			if truthy(cond) {
				out = append(out, item)
			}
		}
		return out, nil
	},
	"$first": func(arg any, doc bson.M, vars map[string]any) (any, error) {
		v, err := resolveLeaf(arg, doc, vars)
		if err != nil {
			return nil, err
		}
		arr, _ := v.(bson.A)
		if len(arr) == 0 {
			return nil, nil
		}
		return arr[0], nil
	},
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	default:
		return true
	}
}

func bsonEqual(a, b any) bool {
	return fmt.Sprint(normalizeForCompare(a)) == fmt.Sprint(normalizeForCompare(b))
}

func normalizeForCompare(v any) any {
	switch t := v.(type) {
	case bson.ObjectID:
		return t.Hex()
	default:
		return t
	}
}

// compareNumericOrTime orders a and b after normalizing both to unix-second
// floats. Authorization documents store "expiration" as unix seconds
// (internal/template's expirationParam output) while $$NOW resolves to a
// time.Time; both sides are normalized so either representation compares
// correctly against the other.
func compareNumericOrTime(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0
	}
	switch {
	case af > bf:
		return 1
	case af < bf:
		return -1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case time.Time:
		return float64(t.Unix()), true
	default:
		return 0, false
	}
}
