package permissions

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// AccessType represents the access level of a user
type AccessType int

const (
	// None represents no access
	None AccessType = iota
	// Admin represents admin access
	Admin
	// Customer represents a regular shop user
	Customer
)

// PermissionController manages user permissions
type PermissionController struct {
	adminIDs       map[int64]bool
	storageService StorageService
	logger         *logrus.Logger
}

// StorageService interface for admins added at runtime
type StorageService interface {
	IsAdmin(userID int64) bool
	GetAdmins() []int64
}

// NewController creates a new permission controller
func NewController(adminIDs []int64, storageService StorageService, logger *logrus.Logger) *PermissionController {
	// Create a map for O(1) lookup of admin IDs
	adminIDMap := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		adminIDMap[id] = true
	}

	logger.Infof("Initialized permission controller with %d admins", len(adminIDs))

	return &PermissionController{
		adminIDs:       adminIDMap,
		storageService: storageService,
		logger:         logger,
	}
}

// GetAccessType determines the access type of a user
func (p *PermissionController) GetAccessType(userID int64) AccessType {
	if userID <= 0 {
		return None
	}

	if p.IsAdmin(userID) {
		return Admin
	}

	return Customer
}

// IsAdmin checks if a user is an admin
func (p *PermissionController) IsAdmin(userID int64) bool {
	isAdmin := p.adminIDs[userID]
	if !isAdmin && p.storageService != nil {
		isAdmin = p.storageService.IsAdmin(userID)
	}
	p.logger.Debugf("Checking if user %d is admin: %v", userID, isAdmin)
	return isAdmin
}

// AdminIDs returns every admin, configured and stored, in ascending order
func (p *PermissionController) AdminIDs() []int64 {
	seen := make(map[int64]bool, len(p.adminIDs))
	var ids []int64
	for id := range p.adminIDs {
		seen[id] = true
		ids = append(ids, id)
	}
	if p.storageService != nil {
		for _, id := range p.storageService.GetAdmins() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
