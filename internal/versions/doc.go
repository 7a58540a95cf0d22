// Package versions splits generated text into ordered version sections.
//
// Parse is a pure function: it never fails and never returns an empty
// slice. Model output that does not follow the requested heading format
// degrades to a single section holding the whole text.
package versions
