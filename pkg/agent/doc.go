// Package agent runs the quiz-solving conversation: it calls LLM providers
// through a fallback orchestrator, executes requested tools and tracks
// submissions per question.
//
// Invariants:
//   - Each Step makes at most one primary call per pooled key and at most one
//     secondary call.
//   - Only quota failures rotate keys; any other primary failure falls back
//     immediately.
//   - Run never returns early because a single question failed.
//
// Usage:
//
//	orch, _ := agent.NewOrchestrator(agent.OrchestratorConfig{...})
//	runner, _ := agent.NewRunner(agent.Config{Stepper: orch, Tools: registry})
//	summary, _ := runner.Run(ctx, "https://quiz.example/start")
package agent
