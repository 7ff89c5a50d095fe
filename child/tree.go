// Package child is the test-binary side of op-isolator. A binary declares its
// tests as a tree of cases and groups and hands it to Main, which either runs
// one test (when launched by the engine), prints the listing, or orchestrates
// the whole suite by re-invoking itself once per test.
package child

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// Body is the code of one test. Returning an error fails the test; panicking
// marks it as panicked.
type Body func(r *Reporter) error

// Node is an element of the test tree: a case, a group, or an option wrapper
type Node struct {
	name     string
	body     Body
	opts     []types.DescriptorOption
	children []Node
	leaf     bool
}

// Case declares a single test
func Case(name string, body Body, opts ...types.DescriptorOption) Node {
	return Node{name: name, body: body, opts: opts, leaf: true}
}

// Group nests nodes under a common name prefix
func Group(name string, nodes ...Node) Node {
	return Node{name: name, children: nodes}
}

// Apply adds descriptor options to every test under node. Options declared
// on a case itself take precedence.
func Apply(node Node, opts ...types.DescriptorOption) Node {
	return Node{children: []Node{node}, opts: opts}
}

// Skip declares every test under node as skipped
func Skip(reason string, node Node) Node {
	return Apply(node, types.WithSkip(reason))
}

// ShouldPanic turns every test under node into one that passes only if its
// body panics with a message containing substr.
func ShouldPanic(substr string, node Node) Node {
	if node.leaf {
		node.body = expectPanic(substr, node.body)
		return node
	}
	children := make([]Node, len(node.children))
	for i, c := range node.children {
		children[i] = ShouldPanic(substr, c)
	}
	node.children = children
	return node
}

// Sweep declares one case per parameter, grouped under name
func Sweep[P any](name string, params []P, label func(P) string, body func(P) Body, opts ...types.DescriptorOption) Node {
	cases := make([]Node, 0, len(params))
	for _, p := range params {
		cases = append(cases, Case(label(p), body(p), opts...))
	}
	return Group(name, cases...)
}

func expectPanic(substr string, body Body) Body {
	return func(r *Reporter) (err error) {
		defer func() {
			p := recover()
			if p == nil {
				if err == nil {
					err = errors.New("test did not panic")
				}
				return
			}
			if msg := fmt.Sprint(p); !strings.Contains(msg, substr) {
				err = fmt.Errorf("panic message %q does not contain %q", msg, substr)
				return
			}
			err = nil
		}()
		return body(r)
	}
}

// Bodies maps test names to their code
type Bodies map[string]Body

// Plan flattens the tree into a suite and the bodies it refers to. Duplicate
// names anywhere in the tree fail with *types.DuplicateNameError.
func Plan(nodes ...Node) (*types.Suite, Bodies, error) {
	bodies := make(Bodies)
	var walkErr error

	gen := func(yield func(types.TestDescriptor) bool) {
		for _, n := range nodes {
			for leaf := range leaves(n, nil, nil) {
				if leaf.node.body == nil {
					walkErr = fmt.Errorf("test %q has no body", leaf.name)
					return
				}
				opts := append(leaf.inherited, leaf.node.opts...)
				if !yield(types.NewDescriptor(leaf.name, opts...)) {
					return
				}
				if _, exists := bodies[leaf.name]; !exists {
					bodies[leaf.name] = leaf.node.body
				}
			}
		}
	}

	suite, err := types.Build(gen)
	if err != nil {
		return nil, nil, err
	}
	if walkErr != nil {
		return nil, nil, walkErr
	}
	return suite, bodies, nil
}

type leafNode struct {
	name      string
	node      Node
	inherited []types.DescriptorOption
}

func leaves(n Node, path []string, inherited []types.DescriptorOption) iter.Seq[leafNode] {
	return func(yield func(leafNode) bool) {
		if n.name != "" {
			path = append(path[:len(path):len(path)], n.name)
		}
		if n.leaf {
			yield(leafNode{
				name:      strings.Join(path, types.NameSeparator),
				node:      n,
				inherited: inherited[:len(inherited):len(inherited)],
			})
			return
		}
		inner := append(inherited[:len(inherited):len(inherited)], n.opts...)
		for _, c := range n.children {
			for leaf := range leaves(c, path, inner) {
				if !yield(leaf) {
					return
				}
			}
		}
	}
}
