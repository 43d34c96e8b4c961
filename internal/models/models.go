package models

// All lists every persisted model, in migration order
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&User{},
		&UserNotifPreference{},
		&Project{},
		&Plot{},
		&Client{},
		&Payment{},
		&Expense{},
		&CancelledSale{},
		&ReconciliationWorkflow{},
		&ScheduledTask{},
		&ScheduledTaskHistory{},
	}
}
