// Package objcore builds typed objects from nested name/value documents.
//
// Concrete Go types are registered under a name and a parent name, forming
// a hierarchy rooted at [RootName]. A document selects the type to build
// through a discriminator key (default "cls"):
//
//	cls: InfluxDB
//	name: metrics
//	config:
//	  cls: InfluxDBConfig
//	  url: http://localhost:8086
//	  org: acme
//	  token: ${INFLUX_TOKEN}
//
// Mappings are built bottom-up, so nested objects are constructed before
// the object that holds them. Remaining keys are decoded into the struct's
// fields by their yaml tag names. A discriminator that names no registered
// type is a [ResolutionError]; nothing is constructed in that case.
//
// [Registry.ToDocument] is the inverse: it emits the discriminator together
// with the field values so the document round-trips through [Registry.Build].
package objcore
