// Package registry names every configuration and backend type so YAML
// documents can select them with the discriminator key.
//
//	cls: InfluxDB
//	name: metrics
//	config:
//	  cls: InfluxDBConfig
//	  url: http://localhost:8086
package registry

import (
	"fmt"

	"github.com/basekick-labs/databayes/internal/backend"
	"github.com/basekick-labs/databayes/internal/influx"
	"github.com/basekick-labs/databayes/internal/mongostore"
	"github.com/basekick-labs/databayes/internal/objcore"
	"github.com/basekick-labs/databayes/internal/sqlstore"
)

// Abstract roots
const (
	// Connector is the root of everything that can connect and close
	Connector = "Connector"
	// Backend is the root of adapters implementing the full CRUD contract
	Backend = "Backend"
	// DBConfig is the host based connection configuration
	DBConfig = "DBConfig"
)

func init() {
	if err := Register(objcore.Default); err != nil {
		panic(err)
	}
}

// Register adds every databayes type to r
func Register(r *objcore.Registry) error {
	abstract := []struct{ name, parent string }{
		{Connector, ""},
		{Backend, Connector},
	}
	for _, a := range abstract {
		if err := r.RegisterAbstract(a.name, a.parent); err != nil {
			return err
		}
	}

	types := []struct {
		name, parent string
		proto        interface{}
	}{
		{DBConfig, "", &backend.Config{}},
		{"InfluxDBConfig", DBConfig, &influx.Config{}},
		{"InfluxDB", Backend, &influx.DB{}},
		{"MongoDB", Backend, &mongostore.DB{}},
		{"SQLDB", Connector, &sqlstore.DB{}},
	}
	for _, t := range types {
		if err := r.Register(t.name, t.parent, t.proto); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a fresh registry holding every databayes type
func NewRegistry() (*objcore.Registry, error) {
	r := objcore.NewRegistry()
	if err := Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadBackend builds a full backend from the YAML document at path
func LoadBackend(r *objcore.Registry, path string, opts ...objcore.LoadOption) (backend.Backend, error) {
	obj, err := r.Load(path, Backend, opts...)
	if err != nil {
		return nil, err
	}
	b, ok := obj.(backend.Backend)
	if !ok {
		return nil, fmt.Errorf("%s: built %T, which is not a backend", path, obj)
	}
	return b, nil
}
