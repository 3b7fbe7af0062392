package backend

import "strings"

// Endpoint is a resolved logical address
type Endpoint struct {
	Collection string // bucket, database or schema
	Name       string // measurement or collection; empty when absent
}

// ResolveEndpoint maps an endpoint string onto a collection and name.
// A non-empty adapterName is the collection and the whole endpoint the name,
// slashes included. Otherwise the endpoint is split on its first '/'.
func ResolveEndpoint(adapterName, endpoint string) Endpoint {
	if adapterName != "" {
		return Endpoint{Collection: adapterName, Name: endpoint}
	}
	collection, name, _ := strings.Cut(endpoint, "/")
	return Endpoint{Collection: collection, Name: name}
}

func (e Endpoint) String() string {
	if e.Name == "" {
		return e.Collection
	}
	return e.Collection + "/" + e.Name
}
