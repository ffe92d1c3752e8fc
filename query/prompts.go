package query

// Prompt templates for the three answer modes, rendered with
// llm.RenderTemplate. Literal JSON braces pass through untouched.

const qfsMapPrompt = `Tu réponds à une question à partir du résumé d'une communauté d'entités.

Question: {{query}}

Résumé:
{{summary}}

Si le résumé contient des éléments de réponse, formule une réponse partielle.
Réponds UNIQUEMENT avec un objet JSON:
{"partial_answer": "...", "confidence": 0.0, "evidence": ["..."]}

- "confidence" entre 0 et 1 selon la pertinence du résumé pour la question
- "evidence" liste les faits du résumé utilisés
- si le résumé est hors sujet: {"partial_answer": "", "confidence": 0.0, "evidence": []}`

const qfsReducePrompt = `Tu fusionnes des réponses partielles en une réponse finale.

Question: {{query}}

Réponses partielles (préfixées par leur identifiant):
{{partials_block}}

Rédige une réponse finale cohérente en t'appuyant sur les partielles pertinentes.
Réponds UNIQUEMENT avec un objet JSON:
{"answer": "...", "used": ["<identifiants des partielles utilisées>"], "confidence": 0.0}`

const pathPrompt = `Tu réponds à une question en t'appuyant sur des chemins extraits d'un graphe de connaissances.
Les chemins sont classés du moins fiable au plus fiable.

Informations de chemins:
{{paths_block}}

Question: {{query}}

Réponds de façon factuelle en te limitant aux chemins fournis. Si les chemins
ne suffisent pas, dis-le explicitement.`

const vectorPrompt = `Tu es un assistant qui répond STRICTEMENT sur la base des extraits fournis.
Cite explicitement les sources utilisées sous la forme [cid=...] dans ta réponse.
Si les extraits ne permettent pas de répondre, dis-le.

Extraits:
{{chunks_block}}

Question: {{query}}`
