package cmd

// demoRequirement is the built-in requirement used by run --demo.
const demoRequirement = `arXiv paper browser web application

1. Category navigation: browse arXiv CS categories (cs.AI, cs.LG, cs.CV and more) with readable names and quick switching
2. Daily paper list: latest papers with a linked title, submission time, category tags, authors and an abstract preview
3. Paper detail page: PDF link, authors and affiliations, full abstract, submission and update dates, one-click BibTeX copy
4. Search: keyword search with a category filter

Technical requirements:
- Python Flask backend
- Data fetched from the arXiv API
- Dark theme with a responsive layout for mobile
`
