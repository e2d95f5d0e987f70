// Package model defines the chat domain records shared by the state
// registry, the durable store and the transport layer.
package model
