package config

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
)

const resourcePoolSchema = `{
  "type": "object",
  "properties": {
    "resource_pool": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["id", "slots"],
          "properties": {
            "id": {"type": "string"},
            "slots": {"type": "integer", "minimum": 0}
          }
        }
      }
    },
    "nodes": {"type": "integer", "minimum": 0},
    "cpus_per_node": {"type": "integer", "minimum": 0},
    "gpus_per_node": {"type": "integer", "minimum": 0}
  }
}`

// loadResourcePool reads the `resource_pool` document (or its uniform
// nodes/cpus_per_node/gpus_per_node shorthand), validates it against the
// fixed JSON schema, and expands the shorthand into the flat per-type
// item list the rest of the engine understands.
func loadResourcePool(v *viper.Viper) (ResourcePoolSpec, error) {
	raw := v.AllSettings()
	doc, err := json.Marshal(raw)
	if err != nil {
		return ResourcePoolSpec{}, fmt.Errorf("config: marshal resource pool doc: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(resourcePoolSchema)
	docLoader := gojsonschema.NewBytesLoader(doc)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return ResourcePoolSpec{}, fmt.Errorf("config: validating resource pool: %w", err)
	}
	if !result.Valid() {
		return ResourcePoolSpec{}, fmt.Errorf("config: invalid resource pool document: %v", result.Errors())
	}

	if v.IsSet("resource_pool") {
		var parsed struct {
			ResourcePool map[string][]ResourcePoolItem `json:"resource_pool"`
		}
		if err := json.Unmarshal(doc, &parsed); err != nil {
			return ResourcePoolSpec{}, fmt.Errorf("config: decode resource pool: %w", err)
		}
		return ResourcePoolSpec{Items: parsed.ResourcePool}, nil
	}

	nodes := v.GetInt("nodes")
	if nodes <= 0 {
		return ResourcePoolSpec{Items: map[string][]ResourcePoolItem{}}, nil
	}
	items := make(map[string][]ResourcePoolItem)
	expand := func(key, typ string) {
		perNode := v.GetInt(key)
		if perNode <= 0 {
			return
		}
		for n := 0; n < nodes; n++ {
			items[typ] = append(items[typ], ResourcePoolItem{ID: fmt.Sprintf("%d", n), Slots: perNode})
		}
	}
	expand("cpus_per_node", "cpus")
	expand("gpus_per_node", "gpus")
	return ResourcePoolSpec{Items: items}, nil
}
