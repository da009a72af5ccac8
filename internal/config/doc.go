// Package config loads the application configuration from an optional HCL
// file. Values not set in the file keep their defaults, and command-line
// flags are applied on top by the caller before validation.
//
// Expressions can read the process environment through the `env` object:
//
//	scoring {
//	  gemini {
//	    api_key = env.GEMINI_API_KEY
//	  }
//	}
package config
