// Package config defines the format-agnostic model of a user-declared
// pipeline topology, decoupling the builder from any concrete
// configuration syntax.
package config
