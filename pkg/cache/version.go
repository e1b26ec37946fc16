package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// versionLength is the number of hex characters kept from the content digest.
const versionLength = 16

type normalizedColumn struct {
	Name     string `json:"n"`
	Type     string `json:"t"`
	Nullable bool   `json:"null"`
}

type normalizedTable struct {
	Name        string             `json:"n"`
	Kind        string             `json:"k"`
	Columns     []normalizedColumn `json:"c"`
	ForeignKeys []string           `json:"fk"`
}

type normalizedSchema struct {
	Name   string            `json:"n"`
	Tables []normalizedTable `json:"t"`
}

type normalizedDatabase struct {
	Engine  string             `json:"e"`
	Schemas []normalizedSchema `json:"s"`
}

// ComputeVersion hashes the structural content of a schema. Schemas, tables,
// columns and foreign key names are sorted by name before hashing so the
// result does not depend on introspection order. Timestamps, comments and
// indexes are not part of the version.
func ComputeVersion(schema *models.DatabaseSchema) string {
	payload, _ := json.Marshal(normalize(schema))
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:versionLength]
}

func normalize(schema *models.DatabaseSchema) normalizedDatabase {
	db := normalizedDatabase{Engine: schema.Engine, Schemas: make([]normalizedSchema, 0, len(schema.Schemas))}

	for _, sm := range schema.Schemas {
		ns := normalizedSchema{Name: sm.Name, Tables: make([]normalizedTable, 0, len(sm.Tables))}
		for _, t := range sm.Tables {
			nt := normalizedTable{
				Name:        t.Name,
				Kind:        t.Kind,
				Columns:     make([]normalizedColumn, 0, len(t.Columns)),
				ForeignKeys: make([]string, 0, len(t.ForeignKeys)),
			}
			for _, c := range t.Columns {
				nt.Columns = append(nt.Columns, normalizedColumn{Name: c.Name, Type: c.DataType, Nullable: c.IsNullable})
			}
			for _, fk := range t.ForeignKeys {
				nt.ForeignKeys = append(nt.ForeignKeys, fk.Name)
			}
			sort.Slice(nt.Columns, func(i, j int) bool { return nt.Columns[i].Name < nt.Columns[j].Name })
			sort.Strings(nt.ForeignKeys)
			ns.Tables = append(ns.Tables, nt)
		}
		sort.Slice(ns.Tables, func(i, j int) bool { return ns.Tables[i].Name < ns.Tables[j].Name })
		db.Schemas = append(db.Schemas, ns)
	}
	sort.Slice(db.Schemas, func(i, j int) bool { return db.Schemas[i].Name < db.Schemas[j].Name })

	return db
}
