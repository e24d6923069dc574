package shopify

import "fmt"

// Resource identifies a syncable resource type of the remote store API.
type Resource string

const (
	ResourceOrders            Resource = "orders"
	ResourceTransactions      Resource = "transactions"
	ResourceProducts          Resource = "products"
	ResourcePages             Resource = "pages"
	ResourceCustomCollections Resource = "customCollections"
	ResourceSmartCollections  Resource = "smartCollections"
)

// Pagination strategy used by the remote API for a resource type.
type Pagination int

const (
	// PaginationCursor pages via the opaque page_info token from the Link header.
	PaginationCursor Pagination = iota
	// PaginationPage pages via an incrementing page number.
	PaginationPage
)

type descriptor struct {
	plural     string
	singular   string
	child      bool // listed under a parent resource
	pagination Pagination
}

var descriptors = map[Resource]descriptor{
	ResourceOrders:            {plural: "orders", singular: "order", pagination: PaginationCursor},
	ResourceTransactions:      {plural: "transactions", singular: "transaction", child: true, pagination: PaginationPage},
	ResourceProducts:          {plural: "products", singular: "product", pagination: PaginationCursor},
	ResourcePages:             {plural: "pages", singular: "page", pagination: PaginationCursor},
	ResourceCustomCollections: {plural: "custom_collections", singular: "custom_collection", pagination: PaginationCursor},
	ResourceSmartCollections:  {plural: "smart_collections", singular: "smart_collection", pagination: PaginationCursor},
}

// Valid reports whether r names a known resource type.
func (r Resource) Valid() bool {
	_, ok := descriptors[r]
	return ok
}

// Child reports whether the resource is listed under a parent resource.
func (r Resource) Child() bool {
	return descriptors[r].child
}

// Pagination returns the pagination strategy the remote API uses for r.
func (r Resource) Pagination() Pagination {
	return descriptors[r].pagination
}

func (r Resource) desc() (descriptor, error) {
	d, ok := descriptors[r]
	if !ok {
		return descriptor{}, fmt.Errorf("unknown resource %q", string(r))
	}
	return d, nil
}

func (d descriptor) listPath(parentID int64) string {
	if d.child {
		return fmt.Sprintf("/orders/%d/%s.json", parentID, d.plural)
	}
	return fmt.Sprintf("/%s.json", d.plural)
}

func (d descriptor) countPath(parentID int64) string {
	if d.child {
		return fmt.Sprintf("/orders/%d/%s/count.json", parentID, d.plural)
	}
	return fmt.Sprintf("/%s/count.json", d.plural)
}

func (d descriptor) itemPath(parentID, id int64) string {
	if d.child {
		return fmt.Sprintf("/orders/%d/%s/%d.json", parentID, d.plural, id)
	}
	return fmt.Sprintf("/%s/%d.json", d.plural, id)
}

// ParseResource maps an external resource name (URL segment, config value)
// to a Resource, accepting both camelCase and snake_case spellings.
func ParseResource(name string) (Resource, error) {
	switch name {
	case "orders":
		return ResourceOrders, nil
	case "transactions":
		return ResourceTransactions, nil
	case "products":
		return ResourceProducts, nil
	case "pages":
		return ResourcePages, nil
	case "customCollections", "custom_collections":
		return ResourceCustomCollections, nil
	case "smartCollections", "smart_collections":
		return ResourceSmartCollections, nil
	}
	return "", fmt.Errorf("unknown resource %q", name)
}
