// Package config provides configuration loading and validation for the sound
// classifier service. A YAML file is decoded over Default() and checked with
// struct tag rules plus per-section cross-field rules.
package config
