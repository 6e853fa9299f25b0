package infra

// Script Lua do check-and-record por janela deslizante (log em ZSET).
//
// Uma única ida ao Redis executa a sequência inteira — poda, contagem e
// registro condicional — de forma indivisível em relação a qualquer outro
// chamador da mesma chave, em qualquer processo. O "agora" vem do próprio
// Redis (TIME), que é a autoridade de relógio do cluster; scores em
// microssegundos.
//
// Retorno: { admitido(0|1), contagem, score mais antigo (0 se vazio), agora }.
const slidingWindowLua = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local member = ARGV[3]

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000000 + tonumber(t[2])

redis.call("ZREMRANGEBYSCORE", key, 0, now - window)

local count = redis.call("ZCARD", key)
local admitted = 0
if count < limit then
  admitted = 1
  redis.call("ZADD", key, now, member)
  count = count + 1
end

local earliest = 0
local first = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if first[2] then
  earliest = tonumber(first[2])
end

redis.call("PEXPIRE", key, math.ceil(window / 1000) + 1000)

return { admitted, count, earliest, now }
`
