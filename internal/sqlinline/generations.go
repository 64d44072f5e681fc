package sqlinline

const QInsertGeneration = `--sql c027bdfc-cc6a-4339-9220-98af04675c05
insert into generations(
  id,
  api_id,
  polling_url,
  prompt,
  aspect_ratio,
  images,
  user_id
) values (
  $1::uuid,
  nullif($2::text, ''),
  nullif($3::text, ''),
  $4::text,
  $5::text,
  $6::jsonb,
  nullif($7::text, '')::uuid
)
returning id::text, created_at;
`

const QListGenerations = `--sql ffe292a8-8a3c-48a8-9287-1b32111f58d0
select
  id::text,
  coalesce(api_id, ''),
  coalesce(polling_url, ''),
  prompt,
  aspect_ratio,
  images,
  coalesce(user_id::text, ''),
  created_at
from generations
where ($1::text = '' or user_id = nullif($1::text, '')::uuid)
order by created_at desc
limit $2::int offset $3::int;
`

const QSelectGenerationByID = `--sql e72d0cc9-2429-416b-8bf5-9928a683e1e0
select
  id::text,
  coalesce(api_id, ''),
  coalesce(polling_url, ''),
  prompt,
  aspect_ratio,
  images,
  coalesce(user_id::text, ''),
  created_at
from generations
where id = $1::uuid
limit 1;
`

const QDeleteGeneration = `--sql 45df9c5a-db2f-43f8-9731-75763e0a28cc
delete from generations
where id = $1::uuid;
`
