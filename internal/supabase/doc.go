// Package supabase provides the REST query client pulse uses to load analytics tables.
//
// # Overview
//
// Supabase exposes each Postgres table through PostgREST under
// <project>/rest/v1/<table>. This package issues read-only queries against
// those endpoints and decodes rows into analytics.Record values. It is the
// transport behind the live package's Data Fetcher.
//
// # Query Encoding
//
//	Query{
//		Filters:    []Filter{{Column: "user_id", Value: "u1"}},
//		Order:      "created_at",
//		Descending: true,
//		Limit:      100,
//	}
//	→ GET /rest/v1/user_engagement?select=*&user_id=eq.u1&order=created_at.desc&limit=100
//
// # Authentication
//
// Every request carries the project key in both the apikey header and as a
// bearer token, which is what the anonymous role expects. Accept-Profile
// selects the Postgres schema.
//
// # Error Handling
//
//   - Network errors are wrapped ("execute request: ...")
//   - HTTP status >= 400 returns *APIError with the PostgREST message when present
//   - Malformed JSON is wrapped ("decode response: ...")
//
// Numbers are decoded as json.Number so large identifiers survive intact.
//
// # Testing
//
// Consumers depend on the Querier interface; tests substitute an in-memory
// fake or point the client at an httptest server.
package supabase
