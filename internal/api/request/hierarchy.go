package request

type CreateCustomer struct {
	Name string `json:"name" validate:"required,slug"`
}

type CreateProject struct {
	Name       string `json:"name" validate:"required,slug"`
	CustomerID string `json:"customer_id" validate:"required"`
}

type CreateProjectGroup struct {
	Name       string `json:"name" validate:"required,slug"`
	CustomerID string `json:"customer_id" validate:"required"`
}

type GroupMembership struct {
	ProjectID string `json:"project_id" validate:"required"`
}
