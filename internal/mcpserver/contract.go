package mcpserver

// BoardContract describes the sticky note model to LLM consumers before
// they add or edit notes.
const BoardContract = `# Maplab Board Contract

A board (room) is an ordered list of sticky notes shared live with every
connected participant. Changes made through these tools appear immediately
on everyone's screen and can be undone by the assistant's own history only.

## Note fields

| Field | Type | Range / format | Default |
|---|---|---|---|
| id | string | assigned by the server | |
| x, y | number | canvas pixels, top-left corner | random in [0, 300) |
| width, height | number | at least 100 | 200 x 100 |
| text | string | plain text, up to 10000 characters | "" |
| fillColor | string | hex colour, e.g. #ffeeaa | #ffffff |
| strokeColor | string | hex colour | #000 |
| fillOpacity, strokeOpacity | number | 0 to 1 | 1 |
| strokeWidth | number | 0 to 10 | 3 |
| fontClassName | string | one of list_fonts | font-ibm-plex-sans |
| selectedBy | object | user currently selecting the note, read-only | null |

## Rules

1. Numbers outside their range are clamped, not rejected.
2. Colours must be #rgb, #rrggbb or #rrggbbaa.
3. Fonts must be a fontClassName returned by list_fonts.
4. Notes later in the list are drawn on top of earlier ones.
5. Room ids are 1 to 64 characters of letters, digits, '-' and '_', starting
   with a letter or digit.
`
