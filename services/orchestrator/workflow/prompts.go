// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import "text/template"

// RelevancePromptTemplate scores one retrieved passage against the question.
const RelevancePromptTemplate = `You are a grader assessing relevance of a retrieved document to a user question.
If the document contains keyword(s) or semantic meaning related to the question, grade it as relevant.
Score the relevance from 0 to 10, where 0 means completely unrelated and 10 means the document directly answers the question.

Retrieved document:

{{.Content}}

User question: {{.Question}}

Output ONLY raw JSON (no markdown, no code blocks):
{"relevance_score": <number from 0 to 10>}
`

// GenerationPromptTemplate produces the draft answer from the kept passages
// and the recent conversation history.
const GenerationPromptTemplate = `You are an intelligent assistant for question-answering tasks. Your goal is to provide accurate, helpful, and contextual responses.

INSTRUCTIONS:
- Use the retrieved context below to answer the current question
- Consider the chat history to maintain conversation continuity
- IMPORTANT: Always respond in the same language as the current question
- If you don't know the answer, clearly state that you don't know
- Keep answers concise but complete
- Reference specific information from the context when possible
- Maintain a conversational tone that builds on previous interactions

CHAT HISTORY:
{{.History}}

RETRIEVED CONTEXT:
{{.Context}}

CURRENT QUESTION: {{.Question}}

ANSWER:
`

// GroundingPromptTemplate checks that the generation is supported by the
// passages it used.
const GroundingPromptTemplate = `You are a grader assessing whether an LLM generation is grounded in / supported by a set of retrieved facts.
'true' means that the answer is grounded in / supported by the set of facts.

Set of facts:

{{.Facts}}

LLM generation: {{.Answer}}

Output ONLY raw JSON (no markdown, no code blocks):
{"grounded": <true or false>}
`

// QualityPromptTemplate checks that the generation resolves the question.
const QualityPromptTemplate = `You are a grader assessing whether an answer addresses / resolves a question.
'true' means that the answer resolves the question.

User question:

{{.Question}}

LLM generation: {{.Answer}}

Output ONLY raw JSON (no markdown, no code blocks):
{"addresses_question": <true or false>}
`

var (
	tmplRelevance  = template.Must(template.New("relevance").Parse(RelevancePromptTemplate))
	tmplGeneration = template.Must(template.New("generation").Parse(GenerationPromptTemplate))
	tmplGrounding  = template.Must(template.New("grounding").Parse(GroundingPromptTemplate))
	tmplQuality    = template.Must(template.New("quality").Parse(QualityPromptTemplate))
)
