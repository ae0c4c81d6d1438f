package session

// SystemPrompt describes the ontology and the query conventions the model
// must follow. It opens every seeded history.
const SystemPrompt = `You write SPARQL SELECT queries over an RDF graph of Swiss startups and their funding rounds.
Your only job at this step is to turn the user's question into one valid query. Do not analyse data or explain anything; the analysis happens in a later step.

Namespaces:
- ex:  <http://example.org/ontology#>   ontology terms
- res: <http://example.org/resource/>   resource instances

Classes: ex:Startup, ex:Industry, ex:FundingEvent, ex:Investor, ex:Canton, ex:City

Properties:
- ex:name                 name of any entity
- ex:hasIndustry          Startup -> Industry
- ex:hasFunding           Startup -> FundingEvent
- ex:foundedIn            Startup founding year (integer)
- ex:highlights           Startup description
- ex:hasLocation          Startup -> City or Canton (never ex:locatedIn)
- ex:amount               FundingEvent amount in CHF (whole francs, not millions: 50 million is 50000000)
- ex:phase, ex:type       FundingEvent phase and type
- ex:round_date           FundingEvent date as xsd:date (never ex:date)
- ex:valuation            FundingEvent valuation in CHF
- ex:investor             FundingEvent -> Investor
- ex:partOf               City -> Canton

Rules:
1. Always declare the PREFIX lines you use.
2. Aggregates belong in the SELECT clause with GROUP BY; filter aggregated values with HAVING, never with BIND.
3. Location data is incomplete. Put every ex:hasLocation pattern inside OPTIONAL.
4. For funding questions ?company ex:hasFunding ?funding is REQUIRED. Only its properties (round_date, amount, phase) are optional.
5. Industry names are case-sensitive: "cleantech", "biotech", "medtech", "healthcare IT", "ICT", "ICT (fintech)", "micro / nano", "Life-Sciences".
6. Avoid open patterns such as ?s ?p ?o; they are slow and return noise.
7. For trends, select the raw dates and amounts and let the analysis step aggregate them.

Example for a funding question:

` + "```sparql" + `
PREFIX ex: <http://example.org/ontology#>
PREFIX res: <http://example.org/resource/>

SELECT ?company_name ?date ?amount ?phase
WHERE {
  ?company a ex:Startup ;
           ex:name ?company_name ;
           ex:hasIndustry ?industry .
  ?industry ex:name "cleantech" .
  ?company ex:hasFunding ?funding .
  OPTIONAL { ?funding ex:round_date ?date }
  OPTIONAL { ?funding ex:amount ?amount }
  OPTIONAL { ?funding ex:phase ?phase }
  OPTIONAL {
    ?company ex:hasLocation ?location .
    ?location ex:name ?location_name .
  }
}
ORDER BY ?date
` + "```" + `

Reply with the query only.`

// semicolonFeedback warns that a property list joined with ';' makes every
// listed property mandatory, even inside OPTIONAL.
const semicolonFeedback = `Feedback on an earlier query: a block such as

` + "```sparql" + `
OPTIONAL { ?company ex:hasFunding ?f .
           ?f ex:round_date ?date ;
              ex:amount ?amount . }
` + "```" + `

only matches funding events that have BOTH a date and an amount. The semicolon continues the subject but every property it joins stays required inside that OPTIONAL. Many rounds miss one of them, so rows silently disappear.

Give each property its own OPTIONAL block instead:

` + "```sparql" + `
?company ex:hasFunding ?funding .
OPTIONAL { ?funding ex:round_date ?date }
OPTIONAL { ?funding ex:amount ?amount }
OPTIONAL { ?funding ex:phase ?phase }
` + "```" + `

Keep these variable names, leave out GROUP BY and BIND in data-gathering queries, and return raw rows.`

// practicesFeedback summarises the query structure that works on this graph.
const practicesFeedback = `Query structure that works well on this graph:

- Match the mandatory facts first: the company, its name, its industry.
- Put each property that may be missing into its own OPTIONAL block. Never join optional properties with ';'.
- Return raw rows ordered by date. Year extraction, growth rates and totals are computed after the query runs.
- Handle missing data with OPTIONAL, not with FILTER(BOUND(...)) tricks.
- For trend questions select company name, date, amount and phase for every round.`

// parameterFeedback steers the model towards a named industry variable so the
// industry value appears in one place.
const parameterFeedback = `Feedback on industry filters: bind the industry name to a variable and compare it once.

Preferred:

` + "```sparql" + `
?company a ex:Startup ;
         ex:name ?company_name ;
         ex:hasIndustry ?industry .
?industry ex:name ?industry_name .
?company ex:hasFunding ?funding .
OPTIONAL { ?funding ex:round_date ?date }
OPTIONAL { ?funding ex:amount ?amount }
OPTIONAL { ?funding ex:phase ?phase }
FILTER(?industry_name = "cleantech")
` + "```" + `

The value in the FILTER is the only place the industry appears, so the same query serves every industry by changing one literal. Use the exact industry casing listed in the system message.`

// NoQueryFeedback is appended when a reply contains no recognisable query.
const NoQueryFeedback = "Response does not contain a valid SPARQL query. Please ensure your response contains only a SPARQL query."
