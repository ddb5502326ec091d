package recipe

import (
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"golang.org/x/net/html"
)

// fromStarlark converts a Starlark value to a plain Go value.
func fromStarlark(v starlark.Value) (any, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.String:
		return string(x), nil
	case starlark.Int:
		i, _ := x.Int64()
		return int(i), nil
	case starlark.Float:
		return float64(x), nil
	case *starlark.List:
		list := make([]any, 0, x.Len())
		for i := 0; i < x.Len(); i++ {
			val, err := fromStarlark(x.Index(i))
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]any, x.Len())
		for _, item := range x.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				continue
			}
			val, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(k)] = val
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("cannot convert %s to a plain value", v.Type())
	}
}

// toStarlark converts decoded JSON (or gojq output) to a Starlark value.
func toStarlark(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(x)
	case string:
		return starlark.String(x)
	case float64:
		if x == float64(int64(x)) {
			return starlark.MakeInt64(int64(x))
		}
		return starlark.Float(x)
	case int:
		return starlark.MakeInt(x)
	case int64:
		return starlark.MakeInt64(x)
	case []any:
		list := make([]starlark.Value, 0, len(x))
		for _, item := range x {
			list = append(list, toStarlark(item))
		}
		return starlark.NewList(list)
	case map[string]any:
		dict := starlark.NewDict(len(x))
		for k, v := range x {
			dict.SetKey(starlark.String(k), toStarlark(v))
		}
		return dict
	case map[string]string:
		dict := starlark.NewDict(len(x))
		for k, v := range x {
			dict.SetKey(starlark.String(k), starlark.String(v))
		}
		return dict
	default:
		return starlark.String(fmt.Sprint(x))
	}
}

func asString(v starlark.Value) string {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		return ""
	case starlark.String:
		return string(x)
	default:
		return x.String()
	}
}

// nodeToMap flattens an HTML node tree into maps of tag, attr, text and
// children.
func nodeToMap(n *html.Node) any {
	switch n.Type {
	case html.TextNode:
		if txt := strings.TrimSpace(n.Data); txt != "" {
			return txt
		}
		return nil
	case html.ElementNode, html.DocumentNode:
	default:
		return nil
	}

	m := map[string]any{"tag": "#document"}
	if n.Type == html.ElementNode {
		m["tag"] = n.Data
		attrs := make(map[string]any, len(n.Attr))
		for _, a := range n.Attr {
			attrs[a.Key] = a.Val
		}
		m["attr"] = attrs
	}

	var children []any
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if child := nodeToMap(c); child != nil {
			children = append(children, child)
		}
	}
	m["children"] = children
	m["text"] = strings.TrimSpace(textOf(n))
	return m
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textOf(c))
	}
	return sb.String()
}
