// Package registry provides the unified catalog of tools exposed by the
// connected providers.
//
// Every tool is registered under the namespaced name
// `providerId__localName`, that is the only name the model sees.
// The registry routes the namespaced name back to the owning provider
// session, validates the arguments against the declared input schema and
// converts the provider result to the JSON payload for the model.
package registry
