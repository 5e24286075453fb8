package lesson

// Attachment 图片上传结果：要么已持久化到对象存储，要么只有本地预览
type Attachment interface {
	isAttachment()
}

// Stored 已上传，URL 可长期访问
type Stored struct {
	URL string
}

// LocalOnly 上传失败时的临时预览，不保证持久
type LocalOnly struct {
	Handle string
}

func (Stored) isAttachment()    {}
func (LocalOnly) isAttachment() {}
