package schema

// UserProfile is the shape clients expect from the legacy user endpoints.
func UserProfile() *Shape {
	return &Shape{
		Name: "UserProfile",
		Fields: []Field{
			{Name: "user_id", Type: TypeInt, Required: true},
			{Name: "name", Type: TypeString, Required: true},
			{Name: "email", Type: TypeString},
			{Name: "created_at", Type: TypeDateTime},
		},
	}
}

// Product is the shape clients expect from the legacy product endpoints.
func Product() *Shape {
	return &Shape{
		Name: "Product",
		Fields: []Field{
			{Name: "product_id", Type: TypeInt, Required: true},
			{Name: "title", Type: TypeString, Required: true},
			{Name: "price", Type: TypeFloat, Required: true},
			{Name: "in_stock", Type: TypeBool},
		},
	}
}

// Order is the shape clients expect from the legacy order endpoints.
func Order() *Shape {
	return &Shape{
		Name: "Order",
		Fields: []Field{
			{Name: "order_id", Type: TypeInt, Required: true},
			{Name: "user_id", Type: TypeInt, Required: true},
			{Name: "total_amount", Type: TypeFloat, Required: true},
			{Name: "status", Type: TypeString, Required: true},
		},
	}
}

// DefaultRegistry returns a registry preloaded with the shapes for the demo
// upstream. Literal patterns are registered before wildcard ones so exact
// paths win.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("/api/users", UserProfile())
	r.Register("/api/user", UserProfile())
	r.Register("/api/profile", UserProfile())
	r.Register("/api/users/{id}", UserProfile())

	r.Register("/api/products", Product())
	r.Register("/api/products/{id}", Product())

	r.Register("/api/orders", Order())
	r.Register("/api/orders/{id}", Order())

	return r
}
