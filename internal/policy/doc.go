// Package policy turns a scan-policy file into concrete invocations of an
// external static-analysis tool.
//
// A policy declares the tool's command line once and a list of profiles.
// Each profile says which CI triggers select it, whether it scans the whole
// tree (full) or only the change against a baseline (diff), and which rule
// sets it enables. The usual setup is two profiles:
//
//	profiles:
//	  - name: nightly
//	    triggers: [schedule]
//	    mode: full
//	    rule_sets: [p/default, p/secrets]
//	  - name: pr
//	    triggers: [pull_request]
//	    mode: diff
//	    rule_sets: [p/default]
//	    baseline_ref: origin/main
//
// Files are YAML or TOML. Both are decoded to a generic tree, unified with the
// embedded CUE schema and decoded from the unified value, so defaults and
// closedness come from the schema rather than from Go code.
//
// The analysis engine itself is opaque: Runner only starts the configured
// command, applies the profile timeout and reads the exit code.
package policy
