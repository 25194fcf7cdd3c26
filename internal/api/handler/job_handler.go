package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/service"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobHandler serves the job lifecycle, confirmation and escrow-agent routes.
type JobHandler struct {
	jobs         *service.JobService
	confirmation *service.ConfirmationService
	acceptance   *service.AcceptanceService
	escrow       *service.EscrowService
	saved        *service.SavedJobService
}

// NewJobHandler creates a new job handler.
func NewJobHandler(
	jobs *service.JobService,
	confirmation *service.ConfirmationService,
	acceptance *service.AcceptanceService,
	escrow *service.EscrowService,
	saved *service.SavedJobService,
) *JobHandler {
	return &JobHandler{
		jobs:         jobs,
		confirmation: confirmation,
		acceptance:   acceptance,
		escrow:       escrow,
		saved:        saved,
	}
}

// JobListResponse is one page of jobs.
type JobListResponse struct {
	Jobs   []domain.Job `json:"jobs"`
	Total  int64        `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// LinkRequest records the contract job behind a stored job. Either field
// identifies it; the receipt of TxHash is read when the id is unknown.
type LinkRequest struct {
	BlockchainJobID *int64 `json:"blockchain_job_id"`
	TxHash          string `json:"tx_hash"`
}

// DirectAcceptRequest assigns a freelancer without a proposal.
type DirectAcceptRequest struct {
	FreelancerAddress string `json:"freelancer_address" binding:"required"`
}

// SubmitRequest carries the deliverable of a submission.
type SubmitRequest struct {
	DeliverableURL string `json:"deliverable_url" binding:"required"`
}

func withJob(c *gin.Context) string {
	id := c.Param("id")
	c.Request = c.Request.WithContext(logger.SetJobID(c.Request.Context(), id))
	return id
}

// CreateJob handles POST /jobs.
func (h *JobHandler) CreateJob(c *gin.Context) {
	client, ok := requireActor(c, "client_address")
	if !ok {
		return
	}
	var req domain.JobInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	job, err := h.jobs.CreateJob(c.Request.Context(), client, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// ListJobs handles GET /jobs with optional status and category filters.
func (h *JobHandler) ListJobs(c *gin.Context) {
	filter := domain.JobFilter{
		Status:   domain.JobStatus(c.Query("status")),
		Category: c.Query("category"),
		Limit:    intQuery(c, "limit", defaultPageSize, maxPageSize),
		Offset:   intQuery(c, "offset", 0, 0),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		badRequest(c, fmt.Errorf("unknown status %q", filter.Status))
		return
	}
	jobs, total, err := h.jobs.ListJobs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, JobListResponse{Jobs: jobs, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

// SearchJobs handles GET /jobs/search and GET /search/jobs. q, tags,
// category and status are all optional.
func (h *JobHandler) SearchJobs(c *gin.Context) {
	filter := domain.SearchFilter{
		Query:    c.Query("q"),
		Tags:     splitTags(c.QueryArray("tags")),
		Category: c.Query("category"),
		Status:   domain.JobStatus(c.Query("status")),
		Limit:    intQuery(c, "limit", defaultPageSize, maxPageSize),
	}
	jobs, err := h.jobs.SearchJobs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// SearchTags handles GET /search/tags.
func (h *JobHandler) SearchTags(c *gin.Context) {
	tags, err := h.jobs.SearchTags(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// splitTags accepts both repeated tags parameters and comma-separated lists.
func splitTags(raw []string) []string {
	var tags []string
	for _, value := range raw {
		tags = append(tags, strings.Split(value, ",")...)
	}
	return tags
}

// GetJob handles GET /jobs/:id and returns the reconciled view.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), withJob(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// UpdateJob handles PUT /jobs/:id.
func (h *JobHandler) UpdateJob(c *gin.Context) {
	id := withJob(c)
	client, ok := requireActor(c, "client_address")
	if !ok {
		return
	}
	var req domain.JobPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	job, err := h.jobs.UpdateJob(c.Request.Context(), id, client, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// DeleteJob handles DELETE /jobs/:id.
func (h *JobHandler) DeleteJob(c *gin.Context) {
	id := withJob(c)
	client, ok := requireActor(c, "client_address")
	if !ok {
		return
	}
	if err := h.jobs.DeleteJob(c.Request.Context(), id, client); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PrepareCreateTx handles POST /jobs/:id/blockchain/prepare.
func (h *JobHandler) PrepareCreateTx(c *gin.Context) {
	id := withJob(c)
	client, ok := requireActor(c, "client_address")
	if !ok {
		return
	}
	tx, err := h.jobs.PrepareCreateJobTx(c.Request.Context(), id, client)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blockchain_transaction": tx})
}

// LinkBlockchainJob handles POST /jobs/:id/blockchain/link.
func (h *JobHandler) LinkBlockchainJob(c *gin.Context) {
	id := withJob(c)
	client, ok := requireActor(c, "client_address")
	if !ok {
		return
	}
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	job, err := h.jobs.LinkBlockchainJob(c.Request.Context(), id, client, req.BlockchainJobID, req.TxHash)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// DirectAccept handles POST /jobs/:id/accept.
func (h *JobHandler) DirectAccept(c *gin.Context) {
	id := withJob(c)
	client, ok := requireActor(c, "client_address")
	if !ok {
		return
	}
	var req DirectAcceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.acceptance.DirectAccept(c.Request.Context(), id, client, req.FreelancerAddress)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SubmitWork handles POST /jobs/:id/submit.
func (h *JobHandler) SubmitWork(c *gin.Context) {
	id := withJob(c)
	freelancer, ok := requireActor(c, "freelancer_address")
	if !ok {
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.jobs.SubmitWork(c.Request.Context(), id, freelancer, req.DeliverableURL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// UploadDeliverable handles POST /jobs/:id/deliverable as a multipart upload
// with the file under "file".
func (h *JobHandler) UploadDeliverable(c *gin.Context) {
	id := withJob(c)
	freelancer, ok := requireActor(c, "freelancer_address")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	up, err := h.jobs.UploadDeliverable(c.Request.Context(), id, freelancer, fh.Filename, fh.Header.Get("Content-Type"), f, fh.Size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, up)
}

// CancelJob handles POST /jobs/:id/cancel.
func (h *JobHandler) CancelJob(c *gin.Context) {
	id := withJob(c)
	client, ok := requireActor(c, "client_address")
	if !ok {
		return
	}
	res, err := h.jobs.CancelJob(c.Request.Context(), id, client)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ConfirmCompletion handles POST /jobs/:id/confirm-completion?role=.
// A completion the contract cannot follow is committed but answered with 409
// so callers notice the manual resolution it needs.
func (h *JobHandler) ConfirmCompletion(c *gin.Context) {
	id := withJob(c)
	role, err := service.ParseRole(c.Query("role"))
	if err != nil {
		badRequest(c, err)
		return
	}
	actor, ok := requireActor(c, string(role)+"_address", "user_address")
	if !ok {
		return
	}
	res, err := h.confirmation.ConfirmCompletion(c.Request.Context(), id, role, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	if res.Inconsistent {
		c.JSON(http.StatusConflict, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RepairAssignment handles POST /jobs/:id/repair.
func (h *JobHandler) RepairAssignment(c *gin.Context) {
	job, err := h.acceptance.RepairAssignment(c.Request.Context(), withJob(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListClientJobs handles GET /jobs/client/:addr.
func (h *JobHandler) ListClientJobs(c *gin.Context) {
	jobs, err := h.jobs.ListClientJobs(c.Request.Context(), c.Param("addr"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// ListFreelancerJobs handles GET /jobs/freelancer/:addr.
func (h *JobHandler) ListFreelancerJobs(c *gin.Context) {
	jobs, err := h.jobs.ListFreelancerJobs(c.Request.Context(), c.Param("addr"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// ListEscrowJobs handles GET /jobs/escrow/check.
func (h *JobHandler) ListEscrowJobs(c *gin.Context) {
	agent, ok := requireActor(c, "escrow_address")
	if !ok {
		return
	}
	jobs, err := h.escrow.ListEscrowJobs(c.Request.Context(), agent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// ReleaseAsEscrow handles POST /jobs/:id/escrow/release.
func (h *JobHandler) ReleaseAsEscrow(c *gin.Context) {
	id := withJob(c)
	agent, ok := requireActor(c, "escrow_address")
	if !ok {
		return
	}
	res, err := h.escrow.ReleaseAsEscrow(c.Request.Context(), id, agent)
	if err != nil {
		respondError(c, err)
		return
	}
	if res.Inconsistent {
		c.JSON(http.StatusConflict, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RevertAsEscrow handles POST /jobs/:id/escrow/revert.
func (h *JobHandler) RevertAsEscrow(c *gin.Context) {
	id := withJob(c)
	agent, ok := requireActor(c, "escrow_address")
	if !ok {
		return
	}
	res, err := h.escrow.RevertAsEscrow(c.Request.Context(), id, agent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SaveJob handles POST /jobs/:id/save.
func (h *JobHandler) SaveJob(c *gin.Context) {
	id := withJob(c)
	user, ok := requireActor(c, "user_address")
	if !ok {
		return
	}
	if err := h.saved.Save(c.Request.Context(), user, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}

// UnsaveJob handles DELETE /jobs/:id/save.
func (h *JobHandler) UnsaveJob(c *gin.Context) {
	id := withJob(c)
	user, ok := requireActor(c, "user_address")
	if !ok {
		return
	}
	if err := h.saved.Unsave(c.Request.Context(), user, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": false})
}

// ListSavedJobs handles GET /jobs/saved/:addr.
func (h *JobHandler) ListSavedJobs(c *gin.Context) {
	jobs, err := h.saved.List(c.Request.Context(), c.Param("addr"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// TransactionStatus handles GET /transactions/:hash.
func (h *JobHandler) TransactionStatus(c *gin.Context) {
	status, err := h.jobs.TransactionStatus(c.Request.Context(), c.Param("hash"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
