package graph

import (
	"fmt"
	"strings"
)

func extractEntitiesPrompt(owner string) string {
	return fmt.Sprintf(`You are a smart assistant who understands entities and their types in a given text. If the user message contains self references such as 'I', 'me', 'my' etc. then use %s as the source entity. Extract all the entities from the text. DO NOT answer the question itself if the given text is a question.`, owner)
}

const establishRelationshipsPrompt = `You are an algorithm designed to extract structured information from text to construct knowledge graphs. Your goal is to capture comprehensive and accurate information. Extract the relationships among the entities mentioned in the text. Establish relationships only among the provided entities and only when the text supports them. Use consistent, general and timeless relationship names, for example prefer "professor" over "became_professor".`

func reconcileEdgesPrompt(owner string, existing []Relationship, newText string) string {
	var sb strings.Builder
	for _, rel := range existing {
		fmt.Fprintf(&sb, "%s -- %s -- %s\n", rel.Source, rel.Relation, rel.Target)
	}

	return fmt.Sprintf(`You are a graph memory manager specializing in identifying, managing, and optimizing relationships within graph-based memories. Your primary task is to analyze a list of existing relationships and decide, for each one, whether the new information updates it, deletes it, or leaves it unchanged.

Existing Graph Memories:
%s
New Text:
%s

For each existing relationship: call update_graph_memory if the new text changes how the same two nodes are related, keeping the source and destination and supplying the new relationship; call delete_graph_memory if the new text directly contradicts it or makes it obsolete without replacing it; call noop if nothing should change. Only update when the new information is more recent or more accurate. Do not touch relationships that are merely unrelated to the new text. Use %s to refer to the user when the text contains self references.`,
		sb.String(), newText, owner)
}
