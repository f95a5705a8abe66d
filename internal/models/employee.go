package models

type Employee struct {
	EmpID        string `json:"emp_ID"`
	EmpFirstname string `json:"emp_firstname"`
	EmpLastname  string `json:"emp_lastname"`
	EmpRole      string `json:"emp_role"`
	EmpPhone     string `json:"emp_phone"`
	EmpUser      string `json:"emp_user"`
}
