// Package harness runs scripted two-device sync scenarios.
//
// A scenario is a YAML file naming the two devices, a flow of steps (local
// edits, sends, lifecycle and link changes, raw payload injection) and a set
// of assertions on the outcome. Run wires both devices the way the CLI does,
// over an in-memory link, with deterministic ids, timestamps and sequence
// numbers, so the trace it produces can be compared against a golden file.
//
// After every step the harness waits for the system to settle: it flushes
// the link and both event loops enough times to cover the longest causal
// chain (send, receive, reply, completion) before recording what happened.
//
// Example scenario:
//
//	name: sync_seeded_list
//	description: phone sends its seeded list to the watch
//	devices:
//	  - name: phone
//	    seed: [first, second]
//	  - name: watch
//	    seed: []
//	flow:
//	  - {device: phone, action: fetch}
//	  - {device: phone, action: activate}
//	  - {device: watch, action: activate}
//	  - {device: phone, action: send}
//	assertions:
//	  - {type: state, device: phone, state: succeeded}
//	  - {type: records, device: watch, texts: [first, second]}
package harness
