// Package normalize canonicalizes user-submitted source text before it is
// compared, deduplicated or parsed. The quiz site renders whatever the teams
// typed, so curly quotes, long dashes, ellipses and non-breaking spaces all
// show up in names that mean the same thing.
package normalize
