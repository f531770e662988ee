// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Visibility is a class-member access level.
type Visibility string

// Member visibilities, widest first.
const (
	VisibilityPublic    Visibility = "public"
	VisibilityProtected Visibility = "protected"
	VisibilityPrivate   Visibility = "private"
)

// visibilityRank orders visibilities for reduction checks. Widening is
// never breaking; only an increased rank flags.
func visibilityRank(v Visibility) int {
	switch v {
	case VisibilityProtected:
		return 1
	case VisibilityPrivate:
		return 2
	default:
		return 0
	}
}

// Param is one declared parameter.
type Param struct {
	// Name is the parameter name.
	Name string `json:"name"`

	// TypeText is the annotation text, compared syntactically.
	TypeText string `json:"type_text,omitempty"`

	// Optional marks a `name?: T` parameter.
	Optional bool `json:"optional,omitempty"`

	// HasDefault marks a defaulted parameter. Defaulted parameters are
	// never breaking when added.
	HasDefault bool `json:"has_default,omitempty"`
}

// Member is one interface member.
type Member struct {
	// Name is the member name.
	Name string `json:"name"`

	// TypeText is the member's type or method signature text.
	TypeText string `json:"type_text,omitempty"`

	// Optional marks a `name?: T` member. New optional members are not
	// breaking.
	Optional bool `json:"optional,omitempty"`
}

// Signature captures the caller-visible shape of one declaration for
// breaking-change comparison. Comparison is syntactic, not semantic:
// any type-text difference counts.
type Signature struct {
	// Name is the symbol name ("foo", "Foo.bar").
	Name string `json:"name"`

	// Kind is "function", "method", "interface", or "type_alias".
	Kind string `json:"kind"`

	// Params are the declared parameters, in order. Functions and
	// methods only.
	Params []Param `json:"params,omitempty"`

	// ReturnType is the return annotation text.
	ReturnType string `json:"return_type,omitempty"`

	// Visibility applies to class members. Empty means public.
	Visibility Visibility `json:"visibility,omitempty"`

	// Members are interface members.
	Members []Member `json:"members,omitempty"`

	// Definition is the right-hand side text of a type alias.
	Definition string `json:"definition,omitempty"`
}

// BreakingChangeKind tags one category of caller-visible break.
type BreakingChangeKind string

// Breaking change kinds.
const (
	BreakParamAddedRequired      BreakingChangeKind = "parameter-added-required"
	BreakParamRemoved            BreakingChangeKind = "parameter-removed"
	BreakParamTypeChanged        BreakingChangeKind = "parameter-type-changed"
	BreakParamOptionalToRequired BreakingChangeKind = "parameter-optional-to-required"
	BreakReturnTypeChanged       BreakingChangeKind = "return-type-changed"
	BreakVisibilityReduced       BreakingChangeKind = "visibility-reduced"
	BreakMemberAddedRequired     BreakingChangeKind = "member-added-required"
	BreakMemberRemoved           BreakingChangeKind = "member-removed"
	BreakMemberTypeChanged       BreakingChangeKind = "member-type-changed"
	BreakTypeAliasRedefined      BreakingChangeKind = "type-alias-redefined"
)

// BreakingChange is one detected break between two versions of a
// declaration.
type BreakingChange struct {
	// Kind is the break category.
	Kind BreakingChangeKind `json:"kind"`

	// Symbol is the affected symbol name.
	Symbol string `json:"symbol"`

	// Detail is a human-readable description.
	Detail string `json:"detail"`
}

// CompareSignatures compares two signature sets (keyed by symbol name)
// and returns all breaking changes for symbols present in both.
//
// Rules:
//   - A new parameter is breaking unless optional or defaulted.
//   - A removed parameter is always breaking.
//   - Any parameter type-text change is breaking.
//   - optional→required is breaking; required→optional is not.
//   - Return-type text change is breaking.
//   - Visibility may only be reduced as a breaking change; widening is
//     not flagged.
//   - A new required interface member is breaking; a new optional one
//     is not. Removed members and member type changes are breaking.
//   - Any type-alias definition change is breaking.
func CompareSignatures(oldSigs, newSigs map[string]Signature) []BreakingChange {
	var changes []BreakingChange
	for name, oldSig := range oldSigs {
		newSig, ok := newSigs[name]
		if !ok {
			continue
		}
		changes = append(changes, compareSignature(oldSig, newSig)...)
	}
	return changes
}

// compareSignature compares one declaration's two versions.
func compareSignature(oldSig, newSig Signature) []BreakingChange {
	var changes []BreakingChange

	// Parameters: positional comparison.
	common := len(oldSig.Params)
	if len(newSig.Params) < common {
		common = len(newSig.Params)
	}
	for i := 0; i < common; i++ {
		op, np := oldSig.Params[i], newSig.Params[i]
		if op.TypeText != np.TypeText {
			changes = append(changes, BreakingChange{
				Kind:   BreakParamTypeChanged,
				Symbol: oldSig.Name,
				Detail: fmt.Sprintf("parameter %q type changed from %q to %q", op.Name, op.TypeText, np.TypeText),
			})
		}
		if (op.Optional || op.HasDefault) && !np.Optional && !np.HasDefault {
			changes = append(changes, BreakingChange{
				Kind:   BreakParamOptionalToRequired,
				Symbol: oldSig.Name,
				Detail: fmt.Sprintf("parameter %q became required", np.Name),
			})
		}
	}
	for i := common; i < len(newSig.Params); i++ {
		p := newSig.Params[i]
		if !p.Optional && !p.HasDefault {
			changes = append(changes, BreakingChange{
				Kind:   BreakParamAddedRequired,
				Symbol: oldSig.Name,
				Detail: fmt.Sprintf("required parameter %q added", p.Name),
			})
		}
	}
	for i := common; i < len(oldSig.Params); i++ {
		changes = append(changes, BreakingChange{
			Kind:   BreakParamRemoved,
			Symbol: oldSig.Name,
			Detail: fmt.Sprintf("parameter %q removed", oldSig.Params[i].Name),
		})
	}

	if oldSig.ReturnType != newSig.ReturnType {
		changes = append(changes, BreakingChange{
			Kind:   BreakReturnTypeChanged,
			Symbol: oldSig.Name,
			Detail: fmt.Sprintf("return type changed from %q to %q", oldSig.ReturnType, newSig.ReturnType),
		})
	}

	if visibilityRank(newSig.Visibility) > visibilityRank(oldSig.Visibility) {
		changes = append(changes, BreakingChange{
			Kind:   BreakVisibilityReduced,
			Symbol: oldSig.Name,
			Detail: fmt.Sprintf("visibility reduced from %s to %s", orPublic(oldSig.Visibility), newSig.Visibility),
		})
	}

	// Interface members: by name.
	if len(oldSig.Members) > 0 || len(newSig.Members) > 0 {
		oldByName := make(map[string]Member, len(oldSig.Members))
		for _, m := range oldSig.Members {
			oldByName[m.Name] = m
		}
		newByName := make(map[string]Member, len(newSig.Members))
		for _, m := range newSig.Members {
			newByName[m.Name] = m
		}
		for _, nm := range newSig.Members {
			om, existed := oldByName[nm.Name]
			if !existed {
				if !nm.Optional {
					changes = append(changes, BreakingChange{
						Kind:   BreakMemberAddedRequired,
						Symbol: oldSig.Name,
						Detail: fmt.Sprintf("required member %q added", nm.Name),
					})
				}
				continue
			}
			if om.TypeText != nm.TypeText {
				changes = append(changes, BreakingChange{
					Kind:   BreakMemberTypeChanged,
					Symbol: oldSig.Name,
					Detail: fmt.Sprintf("member %q type changed from %q to %q", nm.Name, om.TypeText, nm.TypeText),
				})
			}
		}
		for _, om := range oldSig.Members {
			if _, still := newByName[om.Name]; !still {
				changes = append(changes, BreakingChange{
					Kind:   BreakMemberRemoved,
					Symbol: oldSig.Name,
					Detail: fmt.Sprintf("member %q removed", om.Name),
				})
			}
		}
	}

	if oldSig.Kind == "type_alias" && oldSig.Definition != newSig.Definition {
		changes = append(changes, BreakingChange{
			Kind:   BreakTypeAliasRedefined,
			Symbol: oldSig.Name,
			Detail: "type alias definition changed",
		})
	}

	return changes
}

func orPublic(v Visibility) Visibility {
	if v == "" {
		return VisibilityPublic
	}
	return v
}

// ExtractSignatures extracts comparison signatures for every top-level
// function, class method, interface, and type alias in filePath, keyed
// by symbol name.
func (a *TypeScriptAnalyzer) ExtractSignatures(ctx context.Context, filePath string) (map[string]Signature, error) {
	pf, err := a.parseFile(ctx, filePath)
	if err != nil {
		return nil, err
	}

	sigs := make(map[string]Signature)
	root := pf.tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		decl := child
		if child.Type() == "export_statement" {
			if d := child.ChildByFieldName("declaration"); d != nil {
				decl = d
			} else {
				// export { a, b } or export ... from: nothing to sign.
				for j := 0; j < int(child.ChildCount()); j++ {
					a.extractSignature(child.Child(j), pf.content, sigs)
				}
				continue
			}
		}
		a.extractSignature(decl, pf.content, sigs)
	}
	return sigs, nil
}

// extractSignature extracts the signature(s) declared by node.
func (a *TypeScriptAnalyzer) extractSignature(node *sitter.Node, content []byte, out map[string]Signature) {
	switch node.Type() {
	case "function_declaration", "generator_function_declaration":
		name := fieldText(node, "name", content)
		if name == "" {
			return
		}
		out[name] = Signature{
			Name:       name,
			Kind:       "function",
			Params:     extractParams(node.ChildByFieldName("parameters"), content),
			ReturnType: returnTypeText(node, content),
		}
	case "class_declaration", "abstract_class_declaration":
		className := fieldText(node, "name", content)
		body := node.ChildByFieldName("body")
		if className == "" || body == nil {
			return
		}
		for i := 0; i < int(body.ChildCount()); i++ {
			member := body.Child(i)
			if member.Type() != "method_definition" {
				continue
			}
			methodName := fieldText(member, "name", content)
			if methodName == "" {
				continue
			}
			qualified := className + "." + methodName
			out[qualified] = Signature{
				Name:       qualified,
				Kind:       "method",
				Params:     extractParams(member.ChildByFieldName("parameters"), content),
				ReturnType: returnTypeText(member, content),
				Visibility: memberVisibility(member, content),
			}
		}
	case "interface_declaration":
		name := fieldText(node, "name", content)
		body := node.ChildByFieldName("body")
		if name == "" || body == nil {
			return
		}
		sig := Signature{Name: name, Kind: "interface"}
		for i := 0; i < int(body.ChildCount()); i++ {
			member := body.Child(i)
			switch member.Type() {
			case "property_signature", "method_signature":
				mName := fieldText(member, "name", content)
				if mName == "" {
					continue
				}
				sig.Members = append(sig.Members, Member{
					Name:     mName,
					TypeText: memberTypeText(member, content),
					Optional: hasOptionalMarker(member),
				})
			}
		}
		out[name] = sig
	case "type_alias_declaration":
		name := fieldText(node, "name", content)
		if name == "" {
			return
		}
		out[name] = Signature{
			Name:       name,
			Kind:       "type_alias",
			Definition: fieldText(node, "value", content),
		}
	}
}

// extractParams reads a formal_parameters node.
func extractParams(params *sitter.Node, content []byte) []Param {
	if params == nil {
		return nil
	}
	var out []Param
	for i := 0; i < int(params.ChildCount()); i++ {
		child := params.Child(i)
		switch child.Type() {
		case "required_parameter", "optional_parameter":
			p := Param{
				Name:     fieldText(child, "pattern", content),
				TypeText: typeAnnotationText(child, content),
				Optional: child.Type() == "optional_parameter",
			}
			if child.ChildByFieldName("value") != nil {
				p.HasDefault = true
			}
			out = append(out, p)
		case "identifier":
			// Plain JavaScript parameter.
			out = append(out, Param{Name: nodeText(child, content)})
		case "assignment_pattern":
			out = append(out, Param{
				Name:       fieldText(child, "left", content),
				HasDefault: true,
			})
		}
	}
	return out
}

// typeAnnotationText returns a parameter's type annotation text without
// the leading colon.
func typeAnnotationText(node *sitter.Node, content []byte) string {
	t := node.ChildByFieldName("type")
	if t == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(nodeText(t, content), ":"))
}

// returnTypeText returns the return annotation text without the leading
// colon.
func returnTypeText(node *sitter.Node, content []byte) string {
	rt := node.ChildByFieldName("return_type")
	if rt == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(nodeText(rt, content), ":"))
}

// memberTypeText returns an interface member's type or signature text.
func memberTypeText(member *sitter.Node, content []byte) string {
	if member.Type() == "method_signature" {
		params := fieldText(member, "parameters", content)
		ret := returnTypeText(member, content)
		return params + ": " + ret
	}
	return typeAnnotationText(member, content)
}

// hasOptionalMarker reports whether member carries a `?` token.
func hasOptionalMarker(member *sitter.Node) bool {
	for i := 0; i < int(member.ChildCount()); i++ {
		if member.Child(i).Type() == "?" {
			return true
		}
	}
	return false
}

// memberVisibility reads a method's accessibility modifier.
func memberVisibility(member *sitter.Node, content []byte) Visibility {
	for i := 0; i < int(member.ChildCount()); i++ {
		child := member.Child(i)
		if child.Type() == "accessibility_modifier" {
			return Visibility(nodeText(child, content))
		}
	}
	return ""
}
