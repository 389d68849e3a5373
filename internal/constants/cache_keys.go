package constants

// Redis Key 前綴與格式常量
// 統一命名規範: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 所有 Redis Key 的統一應用前綴
	AppPrefix = "app"

	// RAGModulePrefix 知識檢索模組
	RAGModulePrefix = "rag"

	// EntityRetrieval 檢索結果快取實體
	EntityRetrieval = "retrieval"

	// KeyRetrievalCache 檢索結果快取 (STRING, 帶 TTL)
	// 格式: app:rag:retrieval:{md5(query:job_title:difficulty)}
	KeyRetrievalCache = AppPrefix + ":" + RAGModulePrefix + ":" + EntityRetrieval + ":%s"
)
