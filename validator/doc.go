// Package validator checks worker result payloads against per-category
// domain schemas before they are accepted into the task registry.
//
// Three levels are supported: strict runs a compiled JSON Schema pass and
// rejects on any finding, normal reports missing and mistyped fields, and
// lenient checks only that required collections are non-empty. AutoFix
// repairs what it safely can (default values, scalar-to-list coercion) and
// leaves genuinely missing required fields invalid.
package validator
