// Package harness runs YAML scenarios against a library Store.
//
// Each scenario gets a fresh backend (an in-memory SQLite database unless the
// scenario asks for the file backend), a DeterministicClock and sequential
// ids. The same scenario therefore always produces the same ids, commits and
// trace, which RunWithGolden compares against testdata/golden.
//
// A scenario names items with aliases. Steps refer to an item by its alias
// and assertions inspect the final state of an alias:
//
//	steps:
//	  - op: create
//	    as: hymn
//	    type: song
//	    payload: {title: "Amazing Grace"}
//	  - op: update
//	    item: hymn
//	    delta: {title: "Amazing Grace (Remix)"}
//	assertions:
//	  - type: version
//	    item: hymn
//	    expect: 2
package harness
