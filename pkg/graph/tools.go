package graph

import "github.com/engramlabs/engram/pkg/llm"

// Tool names the reconciler expects the model to call.
const (
	ToolExtractEntities        = "extract_entities"
	ToolEstablishRelationships = "establish_relationships"
	ToolUpdateGraphMemory      = "update_graph_memory"
	ToolDeleteGraphMemory      = "delete_graph_memory"
	ToolNoop                   = "noop"
)

// ExtractEntitiesTool instructs the model to list entities in the text.
var ExtractEntitiesTool = llm.Tool{
	Name:        ToolExtractEntities,
	Description: "Extract entities and their types from the text.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entities": map[string]any{
				"type":        "array",
				"description": "An array of entities with their types.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"entity": map[string]any{
							"type":        "string",
							"description": "The name or identifier of the entity.",
						},
						"entity_type": map[string]any{
							"type":        "string",
							"description": "The type or category of the entity.",
						},
					},
					"required":             []string{"entity", "entity_type"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"entities"},
		"additionalProperties": false,
	},
}

// EstablishRelationshipsTool instructs the model to emit relationship triples.
var EstablishRelationshipsTool = llm.Tool{
	Name:        ToolEstablishRelationships,
	Description: "Establish relationships among the entities based on the provided text.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entities": map[string]any{
				"type":        "array",
				"description": "An array of relationship triples.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"source": map[string]any{
							"type":        "string",
							"description": "The source entity of the relationship.",
						},
						"relationship": map[string]any{
							"type":        "string",
							"description": "The relationship between the source and destination entities.",
						},
						"destination": map[string]any{
							"type":        "string",
							"description": "The destination entity of the relationship.",
						},
					},
					"required":             []string{"source", "relationship", "destination"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"entities"},
		"additionalProperties": false,
	},
}

// UpdateGraphMemoryTool instructs the model to relabel an existing edge.
// The source and destination nodes stay the same, only the relationship
// between them changes.
var UpdateGraphMemoryTool = llm.Tool{
	Name:        ToolUpdateGraphMemory,
	Description: "Update the relationship of an existing graph memory because the new information is more recent or more accurate. The source and destination nodes must remain the same, only the relationship between them changes.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source": map[string]any{
				"type":        "string",
				"description": "The identifier of the source node in the relationship to be updated.",
			},
			"destination": map[string]any{
				"type":        "string",
				"description": "The identifier of the destination node in the relationship to be updated.",
			},
			"relationship": map[string]any{
				"type":        "string",
				"description": "The new relationship between the source and destination nodes.",
			},
		},
		"required":             []string{"source", "destination", "relationship"},
		"additionalProperties": false,
	},
}

// DeleteGraphMemoryTool instructs the model to flag a contradicted edge.
var DeleteGraphMemoryTool = llm.Tool{
	Name:        ToolDeleteGraphMemory,
	Description: "Delete the relationship between two nodes because new information contradicts it.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source": map[string]any{
				"type":        "string",
				"description": "The identifier of the source node in the relationship.",
			},
			"relationship": map[string]any{
				"type":        "string",
				"description": "The existing relationship between the source and destination nodes to be deleted.",
			},
			"destination": map[string]any{
				"type":        "string",
				"description": "The identifier of the destination node in the relationship.",
			},
		},
		"required":             []string{"source", "relationship", "destination"},
		"additionalProperties": false,
	},
}

// NoopTool lets the model decline to change the graph.
var NoopTool = llm.Tool{
	Name:        ToolNoop,
	Description: "No operation should be performed on the graph.",
	Parameters: map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": false,
	},
}
