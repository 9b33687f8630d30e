// Package agents provides the built-in collaborators that make codecrew
// runnable without a language model: planners that read a plan file or a
// bulleted requirement, a coder that materialises files declared on a task,
// a rule-based reviewer and a filesystem artifact writer.
//
// Each type satisfies one of the orchestrator's collaborator interfaces.
package agents
