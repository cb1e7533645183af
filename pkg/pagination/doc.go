// Package pagination walks cursor-paginated catalog endpoints.
//
// Catalog list endpoints return a page of items plus an opaque continuation
// cursor. Pagination of one logical list is sequential (the next cursor is
// only known after the current page arrives) and all-or-nothing: the first
// failing page aborts the walk.
//
// Example usage:
//
//	creators, err := pagination.Paginate(ctx, func(ctx context.Context, cursor string) (catalog.Page[catalog.Creator], error) {
//		return catalogClient.ListFollowedCreators(ctx, cursor, 50)
//	})
//
// The walk:
//   - Starts with an empty cursor
//   - Appends every page's items in fetch order
//   - Stops when a page carries no cursor
//   - Fails on a repeated cursor instead of looping forever
//   - Honors context cancellation between pages
package pagination
