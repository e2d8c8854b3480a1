package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

func factExtractionPrompt() string {
	return fmt.Sprintf(`You are a Personal Information Organizer, specialized in accurately storing facts, user memories, and preferences. Your primary role is to extract relevant pieces of information from conversations and organize them into distinct, manageable facts.

Types of information to remember:
1. Personal preferences: likes, dislikes, and specific preferences for food, products, activities, and entertainment.
2. Personal details: names, relationships, and important dates.
3. Plans and intentions: upcoming events, trips, goals, and any plans the user has shared.
4. Activity and service preferences: preferences for dining, travel, hobbies, and other services.
5. Health and wellness preferences: dietary restrictions, fitness routines, and other wellness-related information.
6. Professional details: job titles, work habits, career goals, and other professional information.

Here are some few shot examples:

Input: Hi.
Output: {"facts" : []}

Input: The weather is nice today.
Output: {"facts" : []}

Input: Hi, I am looking for a restaurant in San Francisco.
Output: {"facts" : ["Looking for a restaurant in San Francisco"]}

Input: Yesterday, I had a meeting with John at 3pm. We discussed the new project.
Output: {"facts" : ["Had a meeting with John at 3pm", "Discussed the new project"]}

Input: Hi, my name is John. I am a software engineer.
Output: {"facts" : ["Name is John", "Is a software engineer"]}

Input: My favourite movies are Inception and Interstellar.
Output: {"facts" : ["Favourite movies are Inception and Interstellar"]}

Return the facts and preferences in a JSON format as shown above.

Remember the following:
- Today's date is %s.
- Do not return anything from the few shot examples provided above.
- If you do not find anything relevant in the conversation, return an empty list for the "facts" key.
- Make sure to return the response in the JSON format mentioned in the examples; the response should have a "facts" key whose value is a list of strings.
- Detect the language of the user input and record the facts in the same language.
- Do not start a fact with "The person" or "The user". Instead of "The user likes pizza", write "Likes pizza".

Following is a conversation between the user and the assistant. Extract the relevant facts and preferences from it and return them in the JSON format shown above.`,
		time.Now().Format("2006-01-02"))
}

// decisionCandidate is an existing memory presented to the model with a
// small integer id in place of its real identifier.
type decisionCandidate struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func updateDecisionPrompt(fact string, candidates []decisionCandidate) string {
	existing, _ := json.MarshalIndent(candidates, "", "    ")

	return fmt.Sprintf(`You are a smart memory manager which controls the memory of a system. You can perform four operations: (1) add a new memory, (2) update an existing memory, (3) delete an existing memory, and (4) make no change.

Compare the new fact with each existing memory and decide which single operation to perform:
- ADD: the fact contains new information not present in any existing memory.
- UPDATE: the fact refines or changes an existing memory; the updated text must carry the combined information.
- DELETE: the fact contradicts or retracts an existing memory.
- NONE: the fact is already covered by the existing memories, or conveys nothing worth storing.

Existing memories:
%s

New fact: %q

Return a JSON object of the form:
{"memory": [{"id": "<existing id, or null for ADD>", "text": "<memory text>", "event": "<ADD|UPDATE|DELETE|NONE>", "old_memory": "<previous text, for UPDATE only>"}]}

Follow these instructions:
- For ADD, UPDATE and DELETE return exactly one entry; for NONE you may return one entry with event "NONE" or an empty list.
- For UPDATE and DELETE, "id" MUST be one of the ids shown in the existing memories. Do not invent ids.
- If there are no existing memories, the operation must be ADD.
- Return only the JSON object with no explanation.`,
		string(existing), fact)
}
