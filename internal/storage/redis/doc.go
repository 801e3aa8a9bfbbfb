// Package redis offers distributed primitives for the engine runtime. The
// session lease keeps a conversation single-flight across several engine
// instances sharing one Redis.
package redis
