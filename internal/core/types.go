package core

import "labcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Tier               = domain.Tier
	CareerEventType    = domain.CareerEventType
	PermanentEmployee  = domain.PermanentEmployee
	ProjectEmployee    = domain.ProjectEmployee
	CareerEvent        = domain.CareerEvent
	Project            = domain.Project
	Lab                = domain.Lab
	Equipment          = domain.Equipment
	Snapshot           = domain.Snapshot
	Severity           = domain.Severity
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityPermanentEmployee = domain.EntityPermanentEmployee
	EntityProjectEmployee   = domain.EntityProjectEmployee
	EntityCareerEvent       = domain.EntityCareerEvent
	EntityProject           = domain.EntityProject
	EntityLab               = domain.EntityLab
	EntityEquipment         = domain.EntityEquipment
	EntityAffiliation       = domain.EntityAffiliation
	EntityCollaboration     = domain.EntityCollaboration
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
