package kg

// Prompt templates for the build pipeline. Placeholders use the
// {{name}} form consumed by llm.RenderTemplate; literal JSON braces in
// the templates pass through untouched.

const canonicalizePrompt = `Tu extrais un graphe de connaissances à partir d'un extrait de document.

Série: {{series}}
Chunk: {{cid}}

Texte:
{{chunk_text}}

Identifie les entités nommées (organisations, personnes, lieux, produits, concepts, dates)
et les relations factuelles entre elles. Réponds UNIQUEMENT avec un objet JSON:
{"entities": [{"name": "...", "type": "...", "desc": "...", "aliases": [], "conf": 0.0}],
 "relations": [{"src": "...", "dst": "...", "pred": "...", "conf": 0.0}]}

Contraintes:
- "type" en minuscules (org, person, place, product, concept, date, ...)
- "src" et "dst" reprennent exactement le "name" d'une entité
- "conf" entre 0 et 1 selon la certitude de l'extraction
- aucun texte hors du JSON`

// strictSuffix is appended when a first response could not be parsed.
const strictSuffix = `

IMPORTANT: réponds STRICTEMENT avec l'objet JSON demandé, sans balise de code ni texte autour.`

const linkerPrompt = `Plusieurs entités extraites du même corpus semblent désigner la même chose.

Mention de référence: {{mention}}

Candidats:
{{candidates}}

Si l'un des candidats est l'entité canonique que toutes ces mentions désignent,
réponds {"winner": "<id du candidat>"}.
Si ce sont des entités réellement distinctes, réponds {"winner": "NONE"}.
Réponds UNIQUEMENT avec cet objet JSON.`

const summaryPrompt = `Voici les membres les plus centraux d'une communauté d'entités (niveau {{level}})
détectée dans un corpus documentaire:

{{members}}

Rédige un résumé dense de 3 à 6 phrases: le thème central de la communauté,
ses acteurs principaux et les liens qui les unissent.
Réponds avec le résumé seul, sans préambule ni liste.`
