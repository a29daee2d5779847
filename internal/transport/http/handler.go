package httptransport

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/service"
	"dropmail/backend/internal/storage"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	mailboxes *service.MailboxService
	emails    *service.EmailService
	pushLogs  storage.PushLogRepository
}

// NewHandler 创建 HTTP 处理器。
func NewHandler(
	mailboxes *service.MailboxService,
	emails *service.EmailService,
	pushLogs storage.PushLogRepository,
) *Handler {
	return &Handler{
		mailboxes: mailboxes,
		emails:    emails,
		pushLogs:  pushLogs,
	}
}

// resolveMailboxRequest 解析/创建邮箱的请求体。
type resolveMailboxRequest struct {
	Address string  `json:"address" binding:"required"`
	OwnerID *string `json:"ownerId"`
}

// resolveMailbox 按地址解析邮箱，不存在则创建。
func (h *Handler) resolveMailbox(c *gin.Context) {
	var req resolveMailboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误")
		return
	}

	mailbox, created, err := h.mailboxes.ResolveOrCreate(req.Address, req.OwnerID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAddress):
			BadRequest(c, "邮箱地址不合法")
		case errors.Is(err, service.ErrDomainNotAllowed):
			BadRequest(c, "域名不受理")
		default:
			InternalError(c, "创建邮箱失败")
		}
		return
	}

	// 幂等读取返回 200，只有真正新建才返回 201
	if created {
		Created(c, mailbox)
		return
	}
	Success(c, mailbox)
}

// getMailbox 获取邮箱详情。
func (h *Handler) getMailbox(c *gin.Context) {
	mailbox, err := h.mailboxes.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrMailboxNotFound) {
			NotFound(c, "邮箱不存在")
			return
		}
		InternalError(c, "获取邮箱失败")
		return
	}
	Success(c, mailbox)
}

// extendMailbox 按归属类别的生存时间为邮箱续期。
func (h *Handler) extendMailbox(c *gin.Context) {
	mailbox, err := h.mailboxes.ExtendExpiry(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrMailboxNotFound) {
			NotFound(c, "邮箱不存在")
			return
		}
		InternalError(c, "续期失败")
		return
	}
	Success(c, mailbox)
}

// setMailboxActive 启用或停用邮箱。
func (h *Handler) setMailboxActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误")
		return
	}

	mailbox, err := h.mailboxes.SetActive(c.Param("id"), *req.Active)
	if err != nil {
		if errors.Is(err, storage.ErrMailboxNotFound) {
			NotFound(c, "邮箱不存在")
			return
		}
		InternalError(c, "更新失败")
		return
	}
	Success(c, mailbox)
}

// listMessages 列出邮箱下的全部邮件。
func (h *Handler) listMessages(c *gin.Context) {
	emails, err := h.emails.List(c.Param("id"))
	if err != nil {
		InternalError(c, "获取邮件列表失败")
		return
	}
	Success(c, gin.H{
		"messages": emails,
		"count":    len(emails),
	})
}

// getMessage 获取单封邮件。
func (h *Handler) getMessage(c *gin.Context) {
	email, err := h.emails.Get(c.Param("id"), c.Param("msgID"))
	if err != nil {
		if errors.Is(err, storage.ErrEmailNotFound) {
			NotFound(c, "邮件不存在")
			return
		}
		InternalError(c, "获取邮件失败")
		return
	}
	Success(c, email)
}

// markMessageRead 标记邮件已读。
func (h *Handler) markMessageRead(c *gin.Context) {
	if err := h.emails.MarkRead(c.Param("id"), c.Param("msgID")); err != nil {
		if errors.Is(err, storage.ErrEmailNotFound) {
			NotFound(c, "邮件不存在")
			return
		}
		InternalError(c, "标记已读失败")
		return
	}
	Success(c, nil)
}

// deleteMessage 删除邮件。
func (h *Handler) deleteMessage(c *gin.Context) {
	if err := h.emails.Delete(c.Param("id"), c.Param("msgID")); err != nil {
		if errors.Is(err, storage.ErrEmailNotFound) {
			NotFound(c, "邮件不存在")
			return
		}
		InternalError(c, "删除邮件失败")
		return
	}
	Success(c, nil)
}

// getAttachment 获取附件元数据。
func (h *Handler) getAttachment(c *gin.Context) {
	att, err := h.emails.GetAttachment(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrAttachmentNotFound) {
			NotFound(c, "附件不存在")
			return
		}
		InternalError(c, "获取附件失败")
		return
	}
	Success(c, att)
}

// downloadAttachment 下载附件内容。
//
// 元数据始终可取；内容取不到时（上传失败、对象存储不可用）
// 返回 204，告知调用方只有元数据可用。
func (h *Handler) downloadAttachment(c *gin.Context) {
	att, data, err := h.emails.DownloadAttachment(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrAttachmentNotFound) {
			NotFound(c, "附件不存在")
			return
		}
		InternalError(c, "下载附件失败")
		return
	}

	if data == nil {
		c.Status(http.StatusNoContent)
		return
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", "attachment; filename=\""+att.Filename+"\"")
	c.Data(http.StatusOK, contentType, data)
}

// listPushLogs 查询邮箱最近的推送日志。
func (h *Handler) listPushLogs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	logs, err := h.pushLogs.ListPushLogs(c.Param("id"), limit)
	if err != nil {
		InternalError(c, "获取推送日志失败")
		return
	}
	Success(c, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}
